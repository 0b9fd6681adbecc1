package record

// ExternalRecord is a customer record as sent by clients, keyed by camelCase field names
type ExternalRecord map[string]any

// InternalRecord is a customer record keyed by the column names the model was trained on
type InternalRecord map[string]any

// Pair links a client-facing field name to a model-facing column name
type Pair struct {
	External string
	Internal string
}

// DefaultMapping is the fixed client → model column table for the churn model
var DefaultMapping = []Pair{
	{External: "gender", Internal: "gender"},
	{External: "seniorCitizen", Internal: "SeniorCitizen"},
	{External: "partner", Internal: "Partner"},
	{External: "dependents", Internal: "Dependents"},
	{External: "tenure", Internal: "tenure"},
	{External: "phoneService", Internal: "PhoneService"},
	{External: "multipleLines", Internal: "MultipleLines"},
	{External: "internetService", Internal: "InternetService"},
	{External: "onlineSecurity", Internal: "OnlineSecurity"},
	{External: "onlineBackup", Internal: "OnlineBackup"},
	{External: "deviceProtection", Internal: "DeviceProtection"},
	{External: "techSupport", Internal: "TechSupport"},
	{External: "streamingTV", Internal: "StreamingTV"},
	{External: "streamingMovies", Internal: "StreamingMovies"},
	{External: "contract", Internal: "Contract"},
	{External: "paperlessBilling", Internal: "PaperlessBilling"},
	{External: "paymentMethod", Internal: "PaymentMethod"},
	{External: "monthlyCharges", Internal: "MonthlyCharges"},
	{External: "totalCharges", Internal: "TotalCharges"},
}

// Mapper renames record fields according to an immutable lookup table.
// A Mapper is safe for concurrent use.
type Mapper struct {
	lookup map[string]string
}

// NewMapper builds a Mapper from the given pairs. When an external name
// appears twice the last pair wins.
func NewMapper(pairs []Pair) *Mapper {
	lookup := make(map[string]string, len(pairs))
	for _, p := range pairs {
		lookup[p.External] = p.Internal
	}
	return &Mapper{lookup: lookup}
}

var defaultMapper = NewMapper(DefaultMapping)

// Map renames the fields of rec using DefaultMapping
func Map(rec ExternalRecord) InternalRecord {
	return defaultMapper.Map(rec)
}

// Map returns a new InternalRecord holding every known field of rec under its
// model name. Values are copied verbatim, unknown fields are dropped and absent
// fields stay absent. Map never fails and never modifies rec.
func (m *Mapper) Map(rec ExternalRecord) InternalRecord {
	out := make(InternalRecord, len(rec))
	for key, value := range rec {
		if internal, ok := m.lookup[key]; ok {
			out[internal] = value
		}
	}
	return out
}

// Columns returns the set of model column names this mapper can produce
func (m *Mapper) Columns() map[string]struct{} {
	cols := make(map[string]struct{}, len(m.lookup))
	for _, internal := range m.lookup {
		cols[internal] = struct{}{}
	}
	return cols
}

// Len returns the number of external names the mapper knows
func (m *Mapper) Len() int {
	return len(m.lookup)
}
