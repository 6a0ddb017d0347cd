package platform

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/maheshrc27/socialhub/internal/transfer"
)

// Graph API error codes, shared by Facebook and Instagram.
const (
	graphCodeInvalidToken  = 190
	graphCodeSessionExpiry = 102
	graphCodeInvalidParam  = 100
	graphSubcodeNoObject   = 33
)

func classifyGraph(status int, body []byte) error {
	if status >= 200 && status < 300 {
		return nil
	}

	var ge transfer.GraphErrorResponse
	if err := json.Unmarshal(body, &ge); err != nil || ge.Error.Code == 0 {
		return nil
	}

	switch {
	case ge.Error.Code == graphCodeInvalidToken || ge.Error.Code == graphCodeSessionExpiry:
		return ErrUnauthorized
	case ge.Error.Code == graphCodeInvalidParam && ge.Error.ErrorSubcode == graphSubcodeNoObject:
		return ErrNotFound
	}
	return fmt.Errorf("graph error %d: %s", ge.Error.Code, ge.Error.Message)
}

// insightValue returns the latest value of the named metric, summing per-type
// breakdowns. Missing metrics read as zero.
func insightValue(insights transfer.GraphInsights, name string) int64 {
	for _, metric := range insights.Data {
		if metric.Name != name {
			continue
		}
		if metric.TotalValue != nil {
			return rawMetric(metric.TotalValue.Value)
		}
		if len(metric.Values) == 0 {
			return 0
		}
		return rawMetric(metric.Values[len(metric.Values)-1].Value)
	}
	return 0
}

func rawMetric(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}

	var n float64
	if err := json.Unmarshal(raw, &n); err == nil {
		return int64(math.Round(n))
	}

	var breakdown map[string]float64
	if err := json.Unmarshal(raw, &breakdown); err == nil {
		var total float64
		for _, v := range breakdown {
			total += v
		}
		return int64(math.Round(total))
	}
	return 0
}
