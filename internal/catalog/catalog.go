// Package catalog holds the fixed industry list and the documents each
// industry must supply with a diligence submission.
package catalog

import "strings"

// Industry is a startup's field of business.
type Industry string

const (
	FinTech            Industry = "FinTech"
	HealthTech         Industry = "HealthTech"
	EdTech             Industry = "EdTech"
	AgriTech           Industry = "AgriTech"
	ECommerce          Industry = "E-commerce"
	SaaS               Industry = "SaaS"
	AIML               Industry = "AI/ML"
	Blockchain         Industry = "Blockchain"
	CleanTech          Industry = "CleanTech"
	Gaming             Industry = "Gaming"
	IoT                Industry = "IoT"
	Robotics           Industry = "Robotics"
	Cybersecurity      Industry = "Cybersecurity"
	Biotech            Industry = "Biotech"
	RealEstateTech     Industry = "Real Estate Tech"
	FoodTech           Industry = "FoodTech"
	TravelTech         Industry = "TravelTech"
	MediaEntertainment Industry = "Media/Entertainment"
	SocialMedia        Industry = "Social Media"
	GeneralStartup     Industry = "General Startup"
)

// DefaultIndustry is preselected by the form wizard.
const DefaultIndustry = GeneralStartup

// DocumentType identifies a supporting document slot.
type DocumentType string

const (
	RegistrationCertificate DocumentType = "registrationCertificate"
	RBILicense              DocumentType = "rbiLicense"
	BalanceSheet            DocumentType = "balanceSheet"
	ClinicalLicense         DocumentType = "clinicalLicense"
	EmployeeRecords         DocumentType = "employeeRecords"
	EmployeeProof           DocumentType = "employeeProof"
	ArticlesOfIncorporation DocumentType = "articlesOfIncorporation"
	BusinessPlan            DocumentType = "businessPlan"
	FinancialStatements     DocumentType = "financialStatements"
	TaxReturns              DocumentType = "taxReturns"
	IntellectualProperty    DocumentType = "intellectualProperty"
	ShareholderAgreement    DocumentType = "shareholderAgreement"
	CustomerContracts       DocumentType = "customerContracts"
	VendorContracts         DocumentType = "vendorContracts"
	InsurancePolicies       DocumentType = "insurancePolicies"
	CapTable                DocumentType = "capTable"
)

var industries = []Industry{
	FinTech, HealthTech, EdTech, AgriTech, ECommerce, SaaS, AIML, Blockchain,
	CleanTech, Gaming, IoT, Robotics, Cybersecurity, Biotech, RealEstateTech,
	FoodTech, TravelTech, MediaEntertainment, SocialMedia, GeneralStartup,
}

var documentTypes = []DocumentType{
	RegistrationCertificate, RBILicense, BalanceSheet, ClinicalLicense,
	EmployeeRecords, EmployeeProof, ArticlesOfIncorporation, BusinessPlan,
	FinancialStatements, TaxReturns, IntellectualProperty, ShareholderAgreement,
	CustomerContracts, VendorContracts, InsurancePolicies, CapTable,
}

var labels = map[DocumentType]string{
	RegistrationCertificate: "Registration Certificate",
	RBILicense:              "RBI License",
	BalanceSheet:            "Balance Sheet",
	ClinicalLicense:         "Clinical License",
	EmployeeRecords:         "Employee Records",
	EmployeeProof:           "Employee Proof",
	ArticlesOfIncorporation: "Articles of Incorporation",
	BusinessPlan:            "Business Plan",
	FinancialStatements:     "Financial Statements (3 years)",
	TaxReturns:              "Tax Returns (3 years)",
	IntellectualProperty:    "IP Agreements/Patents",
	ShareholderAgreement:    "Shareholder Agreement",
	CustomerContracts:       "Sample Customer Contracts",
	VendorContracts:         "Sample Vendor Contracts",
	InsurancePolicies:       "Insurance Policies",
	CapTable:                "Capitalization Table",
}

var standardDocuments = []DocumentType{
	RegistrationCertificate,
	BalanceSheet,
	EmployeeProof,
	ArticlesOfIncorporation,
	BusinessPlan,
	FinancialStatements,
	TaxReturns,
	ShareholderAgreement,
	InsurancePolicies,
	CapTable,
}

var regulatedHealthDocuments = []DocumentType{
	RegistrationCertificate,
	ClinicalLicense,
	EmployeeRecords,
	BalanceSheet,
	FinancialStatements,
	TaxReturns,
	BusinessPlan,
	CapTable,
	ShareholderAgreement,
	InsurancePolicies,
	IntellectualProperty,
}

var requirements = map[Industry][]DocumentType{
	FinTech: {
		RegistrationCertificate,
		RBILicense,
		BalanceSheet,
		FinancialStatements,
		TaxReturns,
		BusinessPlan,
		CapTable,
		ShareholderAgreement,
		InsurancePolicies,
		CustomerContracts,
	},
	HealthTech:         regulatedHealthDocuments,
	Biotech:            regulatedHealthDocuments,
	EdTech:             standardDocuments,
	AgriTech:           standardDocuments,
	ECommerce:          standardDocuments,
	SaaS:               standardDocuments,
	AIML:               withIP(standardDocuments),
	Blockchain:         withIP(standardDocuments),
	CleanTech:          standardDocuments,
	Gaming:             withIP(standardDocuments),
	IoT:                withIP(standardDocuments),
	Robotics:           withIP(standardDocuments),
	Cybersecurity:      withIP(standardDocuments),
	RealEstateTech:     standardDocuments,
	FoodTech:           standardDocuments,
	TravelTech:         standardDocuments,
	MediaEntertainment: withIP(standardDocuments),
	SocialMedia:        standardDocuments,
	GeneralStartup:     standardDocuments,
}

func withIP(base []DocumentType) []DocumentType {
	out := make([]DocumentType, 0, len(base)+1)
	out = append(out, base...)
	return append(out, IntellectualProperty)
}

// Industries returns every known industry in display order.
func Industries() []Industry {
	return append([]Industry(nil), industries...)
}

// DocumentTypes returns every known document type.
func DocumentTypes() []DocumentType {
	return append([]DocumentType(nil), documentTypes...)
}

// ParseIndustry matches s against the known industries, ignoring case and
// surrounding whitespace.
func ParseIndustry(s string) (Industry, bool) {
	s = strings.TrimSpace(s)
	for _, ind := range industries {
		if strings.EqualFold(string(ind), s) {
			return ind, true
		}
	}
	return "", false
}

// ParseDocumentType matches s against the known document type keys.
func ParseDocumentType(s string) (DocumentType, bool) {
	d := DocumentType(strings.TrimSpace(s))
	if _, ok := labels[d]; ok {
		return d, true
	}
	return "", false
}

func (i Industry) Valid() bool {
	_, ok := requirements[i]
	return ok
}

func (d DocumentType) Valid() bool {
	_, ok := labels[d]
	return ok
}

// Label is the human readable name used in forms and prompts.
func (d DocumentType) Label() string {
	if l, ok := labels[d]; ok {
		return l
	}
	return string(d)
}

// RequiredDocuments lists the documents an industry must upload, in the
// order they are collected. Unknown industries yield nil.
func RequiredDocuments(i Industry) []DocumentType {
	docs, ok := requirements[i]
	if !ok {
		return nil
	}
	return append([]DocumentType(nil), docs...)
}

// IsRequired reports whether d belongs to the industry's document list.
func IsRequired(i Industry, d DocumentType) bool {
	for _, doc := range requirements[i] {
		if doc == d {
			return true
		}
	}
	return false
}

// MissingDocuments returns the required documents absent from provided,
// preserving the required order.
func MissingDocuments(i Industry, provided []DocumentType) []DocumentType {
	have := make(map[DocumentType]struct{}, len(provided))
	for _, d := range provided {
		have[d] = struct{}{}
	}
	var missing []DocumentType
	for _, d := range requirements[i] {
		if _, ok := have[d]; !ok {
			missing = append(missing, d)
		}
	}
	return missing
}
