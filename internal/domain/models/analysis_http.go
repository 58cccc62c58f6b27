package models

// Requests for analysis HTTP endpoints and Kafka analysis requests.

type AnalysisRequest struct {
	Primary             string    `json:"primary" validate:"required"`
	Comparisons         []string  `json:"comparisons" validate:"required,min=1,max=50,dive,required"`
	From                string    `json:"from"`
	To                  string    `json:"to"`
	Timeframe           string    `json:"timeframe" default:"1wk" validate:"oneof=1d 1wk"`
	Field               string    `json:"field" default:"return" validate:"oneof=close return logreturn volume"`
	Window              int       `json:"window" default:"6" validate:"gte=2,lte=1000"`
	MaxWarp             *int      `json:"max_warp" validate:"required,gte=0,lte=1000"`
	FreqBand            []float64 `json:"freq_band" validate:"required,len=2,dive,gte=0,lte=1"`
	MinStrength         float64   `json:"min_strength" validate:"gte=0,lte=1"`
	WeightedMinStrength float64   `json:"weighted_min_strength" default:"0.3" validate:"gte=0,lte=1"`
	Smoothing           string    `json:"smoothing" default:"llt" validate:"oneof=llt ema savgol none"`
	NormalizeDTW        bool      `json:"normalize_dtw"`
	Refresh             bool      `json:"refresh"`
}

type ReportRequest struct {
	ID string `param:"id" json:"id" validate:"required,uuid"`
}

type AlignRequest struct {
	A            []float64 `json:"a" validate:"required,min=2,max=20000"`
	B            []float64 `json:"b" validate:"required,min=2,max=20000"`
	MaxWarp      *int      `json:"max_warp" validate:"required,gte=0,lte=1000"`
	FreqBand     []float64 `json:"freq_band" validate:"required,len=2,dive,gte=0,lte=1"`
	Smoothing    string    `json:"smoothing" default:"llt" validate:"oneof=llt ema savgol none"`
	NormalizeDTW bool      `json:"normalize_dtw"`
}

type RollingRequest struct {
	Primary     Series   `json:"primary"`
	Comparisons []Series `json:"comparisons" validate:"required,min=1,max=50"`
	Window      int      `json:"window" default:"6" validate:"gte=2,lte=1000"`
	MinStrength float64  `json:"min_strength" validate:"gte=0,lte=1"`
}

// AnalysisAccepted acknowledges a queued analysis request. The report is
// announced on Feed once the run completes.
type AnalysisAccepted struct {
	Status      string   `json:"status"`
	Primary     string   `json:"primary"`
	Comparisons []string `json:"comparisons"`
	Feed        string   `json:"feed"`
}

type CandlesRequest struct {
	Symbol    string `param:"symbol" validate:"required"`
	From      string `query:"from"`
	To        string `query:"to"`
	Timeframe string `query:"timeframe" default:"1wk" validate:"oneof=1d 1wk"`
	Limit     int    `query:"limit" validate:"gte=0,lte=50000"`
}
