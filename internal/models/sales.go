package models

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// DefaultMarket is appended to every record served to the dashboard.
const DefaultMarket = "USA"

const dateLayout = "2006-01-02"

// RawRecord is one row of the weekly point-of-sale export.
type RawRecord struct {
	Retailer    string   `csv:"Retailer"`
	Category    string   `csv:"Category"`
	Segment     string   `csv:"Segment"`
	SubSegment  string   `csv:"Sub-Segment"`
	Brand       string   `csv:"Brand"`
	ProductCode string   `csv:"KNAC-14"`
	Description string   `csv:"Description"`
	Day         DatePart `csv:"Day"`
	Month       DatePart `csv:"Month"`
	Year        DatePart `csv:"Year"`
	Units       float64  `csv:"Units"`
	SalesKg     float64  `csv:"Sales in kg"`
	SalesLC     float64  `csv:"Sales in LC"`
}

// RawColumns lists the headers a raw export must carry.
var RawColumns = []string{
	"Retailer", "Category", "Segment", "Sub-Segment", "Brand", "KNAC-14", "Description",
	"Day", "Month", "Year", "Units", "Sales in kg", "Sales in LC",
}

// WeeklyRecord is one SKU week after aggregation.
type WeeklyRecord struct {
	Retailer    string  `csv:"Retailer" json:"retailer"`
	Category    string  `csv:"Category" json:"category"`
	Segment     string  `csv:"Segment" json:"segment"`
	SubSegment  string  `csv:"Sub-Segment" json:"sub_segment"`
	Brand       string  `csv:"Brand" json:"brand"`
	ProductCode string  `csv:"KNAC-14" json:"product_code"`
	Units       float64 `csv:"Units" json:"units"`
	Volume      float64 `csv:"Volume" json:"volume"`
	Value       float64 `csv:"Value" json:"value"`
	Date        Date    `csv:"Date" json:"date"`
	Year        int     `csv:"year" json:"year"`
	SKU         string  `csv:"SKU" json:"sku"`
	PredFlag    int     `csv:"pred_flag" json:"pred_flag"`
	R2          float64 `csv:"R2" json:"r2"`
	MAPE        float64 `csv:"MAPE" json:"mape"`
	UnitPrice   Measure `csv:"Unit Price" json:"unit_price"`
	VolPrice    Measure `csv:"Vol Price" json:"vol_price"`
	Market      string  `csv:"-" json:"market,omitempty"`
}

// DatasetColumns is the header of the persisted dataset, in file order.
var DatasetColumns = []string{
	"Retailer", "Category", "Segment", "Sub-Segment", "Brand", "KNAC-14",
	"Units", "Volume", "Value", "Date", "year", "SKU", "pred_flag",
	"R2", "MAPE", "Unit Price", "Vol Price",
}

// IsForecast reports whether the record falls in the forecast period.
func (r WeeklyRecord) IsForecast() bool {
	return r.PredFlag == 1
}

// DatePart is a day, month or year column. The export writes them as
// plain decimal numbers, sometimes zero padded.
type DatePart int

func (p DatePart) MarshalCSV() (string, error) {
	return strconv.Itoa(int(p)), nil
}

func (p *DatePart) UnmarshalCSV(s string) error {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return err
	}
	*p = DatePart(n)
	return nil
}

// Date is a calendar date without time of day.
type Date struct {
	time.Time
}

// NewDate normalizes t to midnight UTC of its calendar day.
func NewDate(t time.Time) Date {
	y, m, d := t.Date()
	return Date{time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

func (d Date) String() string {
	return d.Format(dateLayout)
}

func (d Date) MarshalCSV() (string, error) {
	return d.Format(dateLayout), nil
}

func (d *Date) UnmarshalCSV(s string) error {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return err
	}
	*d = NewDate(t)
	return nil
}

func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.Format(dateLayout))
}

func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	return d.UnmarshalCSV(s)
}

// Measure is a float that may legitimately be NaN or infinite, e.g. a
// price over zero units. JSON has no encoding for those, so they become null.
type Measure float64

// Finite reports whether m holds a usable number.
func (m Measure) Finite() bool {
	f := float64(m)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (m Measure) MarshalJSON() ([]byte, error) {
	if !m.Finite() {
		return []byte("null"), nil
	}
	return json.Marshal(float64(m))
}

func (m *Measure) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*m = Measure(math.NaN())
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return err
	}
	*m = Measure(f)
	return nil
}

// YearSummary rolls up one SKU for one calendar year.
type YearSummary struct {
	SKU         string  `json:"sku"`
	Year        int     `json:"year"`
	Units       float64 `json:"units"`
	Value       float64 `json:"value"`
	Rsq         float64 `json:"rsq"`
	MAPE        float64 `json:"mape"`
	UnitGrowth  Measure `json:"unit_growth"`
	ValueGrowth Measure `json:"value_growth"`
}

// SKUMetrics is the KPI card shown for a selected SKU.
type SKUMetrics struct {
	SKU            string  `json:"sku"`
	ReferenceYear  int     `json:"reference_year"`
	UnitsSales     float64 `json:"units_sales"`
	ValueSales     float64 `json:"value_sales"`
	UnitYoYGrowth  Measure `json:"unit_yoy_grth"`
	ValueYoYGrowth Measure `json:"value_yoy_grth"`
	MAPE           float64 `json:"mape"`
	R2             float64 `json:"r2"`
}

// SKURanking is one row of the SKU leaderboard for a year.
type SKURanking struct {
	SKU   string  `json:"sku"`
	Units float64 `json:"units"`
	Value float64 `json:"value"`
	Weeks int     `json:"weeks"`
}
