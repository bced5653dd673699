package qualify

import (
	"log/slog"

	"github.com/BTreeMap/ScreenPipe/internal/models"
)

// StepKeys names the flow steps whose answers feed each criterion.
// An empty key means the flow does not collect that field.
type StepKeys struct {
	Experience string
	CTC        string
	Notice     string
	Incentive  string
	Product    string
}

// DefaultStepKeys matches the bundled interview flow.
func DefaultStepKeys() StepKeys {
	return StepKeys{
		Experience: "experience",
		CTC:        "ctc",
		Notice:     "notice",
		Incentive:  "incentive",
		Product:    "product",
	}
}

// Verdict is the outcome of one evaluation with the per-field breakdown.
type Verdict struct {
	Qualified  bool
	Experience Field
	CTC        Field
	Notice     Field
	Incentive  Field

	ExperienceOK bool
	CTCOK        bool
	NoticeOK     bool
	IncentiveOK  bool
	ProductOK    bool
}

// Evaluate applies one criteria snapshot to the answers. It never fails:
// unparseable fields count as zero.
func Evaluate(answers models.Answers, crit models.QualificationCriteria, keys StepKeys) Verdict {
	get := func(step string) (string, bool) {
		if step == "" {
			return "", false
		}
		return answers.Get(step)
	}

	var v Verdict
	raw, ok := get(keys.Experience)
	v.Experience = ParseNumber(raw, ok)
	raw, ok = get(keys.CTC)
	v.CTC = ParseCTC(raw, ok)
	raw, ok = get(keys.Notice)
	v.Notice = ParseNotice(raw, ok)
	raw, ok = get(keys.Incentive)
	v.Incentive = ParseNumber(raw, ok)

	v.ExperienceOK = v.Experience.Value >= crit.MinExperience
	v.CTCOK = v.CTC.Value >= crit.MinCTC && v.CTC.Value <= crit.MaxCTC
	v.NoticeOK = v.Notice.Value <= crit.MaxNoticeDays
	v.IncentiveOK = !v.Incentive.Present || crit.MinIncentive <= 0 || v.Incentive.Value >= crit.MinIncentive

	v.ProductOK = true
	if product, ok := get(keys.Product); ok {
		v.ProductOK = crit.AllowsProduct(product)
	}

	v.Qualified = v.ExperienceOK && v.CTCOK && v.NoticeOK && v.IncentiveOK && v.ProductOK

	for name, f := range map[string]Field{"experience": v.Experience, "ctc": v.CTC, "notice": v.Notice, "incentive": v.Incentive} {
		if f.Present && !f.Valid {
			slog.Debug("qualify.Evaluate: unparseable answer treated as zero", "field", name, "raw", f.Raw)
		}
	}
	return v
}
