package catalog

import "testing"

func TestEveryIndustryHasRequiredDocuments(t *testing.T) {
	if got := len(Industries()); got != 20 {
		t.Fatalf("expected 20 industries, got %d", got)
	}
	for _, ind := range Industries() {
		docs := RequiredDocuments(ind)
		if len(docs) == 0 {
			t.Fatalf("industry %s has no required documents", ind)
		}
		seen := make(map[DocumentType]bool)
		for _, d := range docs {
			if !d.Valid() {
				t.Fatalf("industry %s references unknown document %q", ind, d)
			}
			if seen[d] {
				t.Fatalf("industry %s lists %s twice", ind, d)
			}
			seen[d] = true
		}
	}
}

func TestRequiredDocumentsIsStable(t *testing.T) {
	first := RequiredDocuments(FinTech)
	first[0] = "tampered"
	second := RequiredDocuments(FinTech)
	if second[0] != RegistrationCertificate {
		t.Fatalf("caller mutation leaked into catalog: %v", second)
	}
}

func TestIndustrySpecificLists(t *testing.T) {
	cases := []struct {
		industry Industry
		size     int
		include  DocumentType
		exclude  DocumentType
	}{
		{FinTech, 10, RBILicense, EmployeeProof},
		{HealthTech, 11, ClinicalLicense, ArticlesOfIncorporation},
		{Biotech, 11, EmployeeRecords, RBILicense},
		{AIML, 11, IntellectualProperty, RBILicense},
		{MediaEntertainment, 11, IntellectualProperty, ClinicalLicense},
		{SaaS, 10, CapTable, IntellectualProperty},
		{GeneralStartup, 10, EmployeeProof, VendorContracts},
	}
	for _, tc := range cases {
		docs := RequiredDocuments(tc.industry)
		if len(docs) != tc.size {
			t.Fatalf("%s: expected %d documents, got %d", tc.industry, tc.size, len(docs))
		}
		if !IsRequired(tc.industry, tc.include) {
			t.Fatalf("%s should require %s", tc.industry, tc.include)
		}
		if IsRequired(tc.industry, tc.exclude) {
			t.Fatalf("%s should not require %s", tc.industry, tc.exclude)
		}
	}
}

func TestMissingDocuments(t *testing.T) {
	required := RequiredDocuments(SaaS)
	missing := MissingDocuments(SaaS, required[1:])
	if len(missing) != 1 || missing[0] != required[0] {
		t.Fatalf("unexpected missing list %v", missing)
	}
	if got := MissingDocuments(SaaS, required); len(got) != 0 {
		t.Fatalf("expected nothing missing, got %v", got)
	}
	if got := MissingDocuments(SaaS, nil); len(got) != len(required) {
		t.Fatalf("expected all %d missing, got %d", len(required), len(got))
	}
}

func TestParseIndustry(t *testing.T) {
	if ind, ok := ParseIndustry(" ai/ml "); !ok || ind != AIML {
		t.Fatalf("ParseIndustry = %q, %v", ind, ok)
	}
	if _, ok := ParseIndustry("Quantum"); ok {
		t.Fatalf("unexpected match for unknown industry")
	}
	if RequiredDocuments("Quantum") != nil {
		t.Fatalf("unknown industry should have no list")
	}
}

func TestLabels(t *testing.T) {
	if got := CapTable.Label(); got != "Capitalization Table" {
		t.Fatalf("label = %q", got)
	}
	if got := DocumentType("other").Label(); got != "other" {
		t.Fatalf("fallback label = %q", got)
	}
	if _, ok := ParseDocumentType("rbiLicense"); !ok {
		t.Fatalf("rbiLicense should parse")
	}
	if _, ok := ParseDocumentType("cybersecurity"); ok {
		t.Fatalf("cybersecurity is not a document type")
	}
}
