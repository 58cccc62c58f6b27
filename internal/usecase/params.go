package usecase

import (
	"strings"

	"comove/internal/domain/errs"
	"comove/internal/domain/models"
	domrepo "comove/internal/domain/repository"
	"comove/internal/services/features"
	"comove/internal/services/smoothing"
	"comove/pkg/util"
)

// RequestParams turns an HTTP or Kafka analysis request into run parameters.
// Smoothing settings other than the method come from base. Time bounds are
// widened to whole bars of the requested timeframe.
func RequestParams(req *models.AnalysisRequest, base smoothing.Params) (AnalysisParams, error) {
	if req.MaxWarp == nil {
		return AnalysisParams{}, errs.InvalidParameter("max_warp", "is required")
	}
	if req.FreqBand == nil {
		return AnalysisParams{}, errs.InvalidParameter("freq_band", "is required")
	}
	tf := domrepo.NormalizeTimeframe(req.Timeframe)
	p := AnalysisParams{
		Primary:             strings.TrimSpace(req.Primary),
		Comparisons:         make([]string, 0, len(req.Comparisons)),
		Timeframe:           tf,
		Field:               domrepo.NormalizeField(req.Field),
		Window:              req.Window,
		MaxWarp:             *req.MaxWarp,
		FreqBand:            append([]float64(nil), req.FreqBand...),
		MinStrength:         req.MinStrength,
		WeightedMinStrength: req.WeightedMinStrength,
		Smoothing:           base,
		NormalizeDTW:        req.NormalizeDTW,
		Refresh:             req.Refresh,
	}
	for _, c := range req.Comparisons {
		p.Comparisons = append(p.Comparisons, strings.TrimSpace(c))
	}
	if req.Smoothing != "" {
		p.Smoothing.Method = smoothing.Method(req.Smoothing)
	}

	var ok bool
	if req.From != "" {
		if p.From, ok = util.ParseTime(req.From); !ok {
			return AnalysisParams{}, errs.InvalidParameter("from", "invalid time %q", req.From)
		}
	}
	if req.To != "" {
		if p.To, ok = util.ParseTime(req.To); !ok {
			return AnalysisParams{}, errs.InvalidParameter("to", "invalid time %q", req.To)
		}
	}
	p.From, p.To = features.AlignFromTo(p.From, p.To, tf)
	return p, nil
}
