package mapping

import "example.com/leadimport/internal/models"

// FieldPattern lists the known aliases of one canonical field. Aliases are lower-case and
// underscore-separated, the same shape normalizeHeader produces.
type FieldPattern struct {
	Field   models.CanonicalField
	Aliases []string
}

// Catalog is the process-wide alias table, scanned in slice order. When several aliases tie
// on the best score for a header, the first one in this order wins.
var Catalog = []FieldPattern{
	{models.FieldName, []string{"name", "full_name", "fullname", "contact_name", "first_name", "last_name", "lead_name", "person", "contact"}},
	{models.FieldEmail, []string{"email", "e_mail", "email_address", "mail", "contact_email", "work_email", "business_email"}},
	{models.FieldCompany, []string{"company", "company_name", "organization", "organisation", "org", "business", "account", "employer", "firm"}},
	{models.FieldPhone, []string{"phone", "phone_number", "telephone", "tel", "mobile", "cell", "cellphone", "cell_phone", "mobile_phone", "contact_number"}},
	{models.FieldJobTitle, []string{"job_title", "title", "position", "role", "designation", "job", "occupation"}},
	{models.FieldIndustry, []string{"industry", "sector", "vertical", "market", "business_type"}},
	{models.FieldCompanySize, []string{"company_size", "employees", "employee_count", "headcount", "size", "num_employees", "staff"}},
	{models.FieldLinkedIn, []string{"linkedin", "linkedin_url", "linkedin_profile", "linked_in", "profile_url"}},
	{models.FieldBudget, []string{"budget", "budget_range", "spend", "annual_budget", "budget_amount"}},
	{models.FieldAuthority, []string{"authority", "decision_maker", "decision_authority", "buyer_role", "approver"}},
	{models.FieldNeed, []string{"need", "needs", "pain_point", "pain_points", "requirements", "use_case", "challenge"}},
	{models.FieldTimeline, []string{"timeline", "timeframe", "time_frame", "purchase_timeline", "deadline", "close_date", "urgency"}},
	{models.FieldNotes, []string{"notes", "note", "comments", "comment", "remarks", "description", "details"}},
}
