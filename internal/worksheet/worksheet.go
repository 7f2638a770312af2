// Package worksheet renders a stored income calculation into the standard
// one-page worksheet layout as XML. Pure formatting: no new computation.
package worksheet

import (
	"fmt"

	"github.com/beevik/etree"

	"github.com/yousifm93/income-engine/internal/models"
)

// Render produces the worksheet XML for a calculation
func Render(calc *models.IncomeCalculation) ([]byte, error) {
	doc := etree.NewDocument()
	doc.CreateProcInst("xml", `version="1.0" encoding="UTF-8"`)

	root := doc.CreateElement("IncomeWorksheet")
	root.CreateAttr("calculationId", calc.ID.String())
	root.CreateAttr("version", calc.CalculationVersion)

	header := root.CreateElement("Header")
	header.CreateElement("BorrowerId").SetText(calc.BorrowerID)
	header.CreateElement("Agency").SetText(string(calc.Agency))
	header.CreateElement("LoanProgram").SetText(calc.LoanProgram)
	header.CreateElement("QualifyingMonthlyIncome").SetText(money(calc.ResultMonthlyIncome))
	header.CreateElement("Confidence").SetText(fmt.Sprintf("%.2f", calc.Confidence))
	header.CreateElement("CalculatedAt").SetText(calc.CreatedAt.Format("2006-01-02 15:04:05"))

	components := root.CreateElement("Components")
	for _, c := range calc.Components {
		el := components.CreateElement("Component")
		el.CreateAttr("type", string(c.Type))
		el.CreateAttr("key", c.Key)
		el.CreateElement("MonthlyAmount").SetText(money(c.MonthlyAmount))
		if c.OverrideAmount != nil {
			el.CreateElement("OverrideAmount").SetText(money(*c.OverrideAmount))
		}
		el.CreateElement("Method").SetText(c.CalculationMethod)
		if c.MonthsConsidered != nil {
			el.CreateElement("MonthsConsidered").SetText(fmt.Sprintf("%d", *c.MonthsConsidered))
		}
		if c.Notes != "" {
			el.CreateElement("Notes").SetText(c.Notes)
		}
	}

	trace := root.CreateElement("CalculationTrace")
	for _, t := range calc.Trace {
		el := trace.CreateElement("Line")
		if t.Year != 0 {
			el.CreateAttr("year", fmt.Sprintf("%d", t.Year))
		}
		el.CreateAttr("form", t.SourceForm)
		el.CreateAttr("line", t.LineItem)
		el.CreateAttr("sign", string(t.Sign))
		el.CreateElement("Description").SetText(t.Description)
		el.CreateElement("Amount").SetText(money(t.Amount))
		el.CreateElement("AllocatedTo").SetText(t.AllocatedTo)
		if t.AllocationPct != nil {
			el.CreateElement("AllocationPct").SetText(fmt.Sprintf("%.0f", *t.AllocationPct))
		}
	}

	if len(calc.Warnings) > 0 {
		warnings := root.CreateElement("Warnings")
		for _, w := range calc.Warnings {
			el := warnings.CreateElement("Warning")
			el.CreateAttr("code", w.Code)
			el.SetText(w.Message)
		}
	}

	if len(calc.MissingInputs) > 0 {
		missing := root.CreateElement("MissingInputs")
		for _, m := range calc.MissingInputs {
			missing.CreateElement("Input").SetText(m)
		}
	}

	doc.Indent(2)
	return doc.WriteToBytes()
}

func money(v float64) string {
	return fmt.Sprintf("%.2f", v)
}
