// Package explore runs the descriptive statistics and hypothesis tests
// behind the churn analysis on prepared records.
package explore

import (
	"sort"

	"github.com/YuminosukeSato/churn/dataset"
	"github.com/YuminosukeSato/churn/pkg/errors"
	"github.com/YuminosukeSato/churn/pkg/log"
)

// ShortTenureMonths is the tenure at or below which a customer counts as new.
const ShortTenureMonths = 24

// GroupRate is the churn rate of customers sharing one value of a field.
type GroupRate struct {
	Value   string
	Count   int
	Churned int
	Rate    float64
}

// Report collects every exploration result for one labeled record set.
type Report struct {
	Labeled   int
	Churned   int
	ChurnRate float64

	// ShortTenureShare is the fraction of churned customers with tenure
	// of at most ShortTenureMonths.
	ShortTenureShare float64

	Tenure         Summary
	MonthlyCharges Summary
	TotalCharges   Summary

	ByContract    []GroupRate
	ByPayment     []GroupRate
	ByTechSupport []GroupRate

	// MonthlyChargesTest: churned customers pay more per month.
	MonthlyChargesTest TTestResult
	// TenureTest: churned customers have shorter tenure.
	TenureTest TTestResult
	// ContractTest: contract type and churn are not independent.
	ContractTest ChiSquareResult
	// TechSupportTest: tech support and churn are not independent.
	TechSupportTest ChiSquareResult
}

// Analyze explores the labeled records. Unlabeled records are ignored.
func Analyze(records []dataset.Record) (*Report, error) {
	var labeled []dataset.Record
	for _, r := range records {
		if r.Labeled() {
			labeled = append(labeled, r)
		}
	}
	if len(labeled) == 0 {
		return nil, errors.Wrap(errors.ErrEmptyData, "explore: no labeled records")
	}

	rep := &Report{Labeled: len(labeled)}
	var (
		tenure, monthly, total         []float64
		churnMonthly, retainedMonthly  []float64
		churnTenure, retainedTenure    []float64
		churnLabels, contracts, techSp []string
		shortTenure                    int
	)
	for _, r := range labeled {
		m := r.MonthlyCharges.InexactFloat64()
		tm := float64(r.TenureMonths)
		tenure = append(tenure, tm)
		monthly = append(monthly, m)
		total = append(total, r.TotalCharges.InexactFloat64())
		if *r.Churned {
			rep.Churned++
			churnMonthly = append(churnMonthly, m)
			churnTenure = append(churnTenure, tm)
			if r.TenureMonths <= ShortTenureMonths {
				shortTenure++
			}
		} else {
			retainedMonthly = append(retainedMonthly, m)
			retainedTenure = append(retainedTenure, tm)
		}
		churnLabels = append(churnLabels, yesNo(*r.Churned))
		contracts = append(contracts, r.ContractType)
		techSp = append(techSp, yesNo(r.TechSupport))
	}
	rep.ChurnRate = errors.SafeDivide(float64(rep.Churned), float64(rep.Labeled))
	rep.ShortTenureShare = errors.SafeDivide(float64(shortTenure), float64(rep.Churned))

	var err error
	if rep.Tenure, err = Describe(tenure); err != nil {
		return nil, err
	}
	if rep.MonthlyCharges, err = Describe(monthly); err != nil {
		return nil, err
	}
	if rep.TotalCharges, err = Describe(total); err != nil {
		return nil, err
	}

	rep.ByContract = ChurnRateBy(labeled, func(r dataset.Record) string { return r.ContractType })
	rep.ByPayment = ChurnRateBy(labeled, func(r dataset.Record) string { return r.PaymentType })
	rep.ByTechSupport = ChurnRateBy(labeled, func(r dataset.Record) string { return yesNo(r.TechSupport) })

	if rep.MonthlyChargesTest, err = TwoSampleTTest(churnMonthly, retainedMonthly, Greater); err != nil {
		return nil, errors.Wrap(err, "monthly charges t-test")
	}
	if rep.TenureTest, err = TwoSampleTTest(churnTenure, retainedTenure, Less); err != nil {
		return nil, errors.Wrap(err, "tenure t-test")
	}
	if rep.ContractTest, err = chiSquare(churnLabels, contracts); err != nil {
		return nil, errors.Wrap(err, "contract type chi-square")
	}
	if rep.TechSupportTest, err = chiSquare(churnLabels, techSp); err != nil {
		return nil, errors.Wrap(err, "tech support chi-square")
	}

	log.GetLoggerWithName("explore").Info("exploration finished",
		log.SamplesKey, rep.Labeled,
		"churn_rate", rep.ChurnRate,
		"monthly_charges_p", rep.MonthlyChargesTest.PValue,
		"tenure_p", rep.TenureTest.PValue,
		"contract_p", rep.ContractTest.PValue,
		"tech_support_p", rep.TechSupportTest.PValue,
	)
	return rep, nil
}

func chiSquare(rows, cols []string) (ChiSquareResult, error) {
	t, err := CrossTab(rows, cols)
	if err != nil {
		return ChiSquareResult{}, err
	}
	return ChiSquareTest(t)
}

// ChurnRateBy groups labeled records by key and returns each group's churn
// rate, sorted by value.
func ChurnRateBy(records []dataset.Record, key func(dataset.Record) string) []GroupRate {
	groups := make(map[string]*GroupRate)
	for _, r := range records {
		if !r.Labeled() {
			continue
		}
		k := key(r)
		g, ok := groups[k]
		if !ok {
			g = &GroupRate{Value: k}
			groups[k] = g
		}
		g.Count++
		if *r.Churned {
			g.Churned++
		}
	}
	out := make([]GroupRate, 0, len(groups))
	for _, g := range groups {
		g.Rate = errors.SafeDivide(float64(g.Churned), float64(g.Count))
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Value < out[j].Value })
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}
