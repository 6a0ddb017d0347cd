package transfer

import "encoding/json"

// GraphErrorResponse is the error envelope shared by the Facebook and Instagram Graph APIs.
type GraphErrorResponse struct {
	Error struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		IsTransient  bool   `json:"is_transient"`
		FbtraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

type GraphID struct {
	ID string `json:"id"`
}

// GraphInsight is one metric of an /insights edge. Value is either a number
// or an object of per-type counts depending on the metric.
type GraphInsight struct {
	Name   string `json:"name"`
	Period string `json:"period"`
	Values []struct {
		Value   json.RawMessage `json:"value"`
		EndTime string          `json:"end_time"`
	} `json:"values"`
	TotalValue *struct {
		Value json.RawMessage `json:"value"`
	} `json:"total_value"`
}

type GraphInsights struct {
	Data []GraphInsight `json:"data"`
}

type GraphPaging struct {
	Cursors struct {
		Before string `json:"before"`
		After  string `json:"after"`
	} `json:"cursors"`
	Next string `json:"next"`
}

// GraphDemographics is a lifetime insight broken down by one dimension, such as country.
type GraphDemographics struct {
	Data []struct {
		Name       string `json:"name"`
		TotalValue struct {
			Breakdowns []struct {
				DimensionKeys []string `json:"dimension_keys"`
				Results       []struct {
					DimensionValues []string `json:"dimension_values"`
					Value           int64    `json:"value"`
				} `json:"results"`
			} `json:"breakdowns"`
		} `json:"total_value"`
	} `json:"data"`
}

type GraphContainerStatus struct {
	ID         string `json:"id"`
	StatusCode string `json:"status_code"`
}
