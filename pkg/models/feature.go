package models

// Feature is a metered action of the analysis service and the units it costs.
type Feature struct {
	Name string `json:"name" yaml:"name"`
	Path string `json:"path" yaml:"path"`
	Cost int64  `json:"cost" yaml:"cost"`
}

// Cost weights charged by the front end for each metered action.
const (
	CostAnalyze  int64 = 10
	CostChat     int64 = 1
	CostJobMatch int64 = 1
	CostRevision int64 = 2
)

// DefaultFeatures returns the analysis service endpoints with their weights.
func DefaultFeatures() []Feature {
	return []Feature{
		{Name: "analyze", Path: "/analyze", Cost: CostAnalyze},
		{Name: "chat", Path: "/chatbot/respond", Cost: CostChat},
		{Name: "jobmatch", Path: "/jobmatch", Cost: CostJobMatch},
		{Name: "revision", Path: "/revision", Cost: CostRevision},
	}
}
