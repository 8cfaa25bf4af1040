package services

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"smartassist-api/pkg/models"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// Table is a raw tabular dataset: one header row plus data rows.
type Table struct {
	Header []string
	Rows   [][]string
}

// nullTokens are cell values treated as missing.
var nullTokens = map[string]bool{
	"":     true,
	"na":   true,
	"n/a":  true,
	"nan":  true,
	"null": true,
	"none": true,
}

// CustomerDataService 顧客データの読み込み・検証・集計を行うサービス
type CustomerDataService struct {
	defaultDataFile string
	logger          zerolog.Logger
}

// NewCustomerDataService creates a service whose LoadDefault reads defaultDataFile.
func NewCustomerDataService(defaultDataFile string, logger zerolog.Logger) *CustomerDataService {
	return &CustomerDataService{
		defaultDataFile: defaultDataFile,
		logger:          logger.With().Str("component", "customer_data").Logger(),
	}
}

// DefaultDataFile returns the configured dataset path.
func (s *CustomerDataService) DefaultDataFile() string {
	return s.defaultDataFile
}

// LoadDefault reads the configured dataset.
func (s *CustomerDataService) LoadDefault() (*Table, error) {
	if s.defaultDataFile == "" {
		return nil, fmt.Errorf("no customer data file configured")
	}
	return s.LoadTable(s.defaultDataFile)
}

// LoadTable reads a .csv or .xlsx file from disk.
func (s *CustomerDataService) LoadTable(path string) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open customer data: %w", err)
	}
	defer f.Close()
	t, err := ReadTable(f, filepath.Base(path))
	if err != nil {
		return nil, err
	}
	s.logger.Debug().Str("path", path).Int("rows", len(t.Rows)).Msg("customer data loaded")
	return t, nil
}

// ReadTable parses a CSV or XLSX stream; the format is chosen by the file
// name extension (.xlsx reads the first sheet, anything else is CSV).
func ReadTable(r io.Reader, filename string) (*Table, error) {
	var rows [][]string
	if strings.HasSuffix(strings.ToLower(filename), ".xlsx") {
		f, err := excelize.OpenReader(r)
		if err != nil {
			return nil, fmt.Errorf("read excel file: %w", err)
		}
		defer f.Close()
		rows, err = f.GetRows(f.GetSheetName(0))
		if err != nil {
			return nil, fmt.Errorf("read excel sheet: %w", err)
		}
	} else {
		cr := csv.NewReader(r)
		cr.FieldsPerRecord = -1
		cr.TrimLeadingSpace = true
		var err error
		rows, err = cr.ReadAll()
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
	}
	if len(rows) == 0 {
		return nil, &DataError{Reason: "dataset has no header row"}
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
	}
	return &Table{Header: header, Rows: rows[1:]}, nil
}

// columnIndex maps normalised column names to positions.
func (t *Table) columnIndex() map[string]int {
	idx := make(map[string]int, len(t.Header))
	for i, h := range t.Header {
		key := strings.ToLower(strings.TrimSpace(h))
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}
	return idx
}

func (t *Table) cell(row []string, col int) string {
	if col >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[col])
}

func isNull(v string) bool {
	return nullTokens[strings.ToLower(strings.TrimSpace(v))]
}

// ValidateTable checks column presence and null values. requireLabel adds
// the churn column to the required set.
func ValidateTable(t *Table, requireLabel bool) models.ValidationResult {
	required := append([]string(nil), models.RequiredCustomerColumns...)
	if requireLabel {
		required = append(required, models.ColumnChurn)
	}
	idx := t.columnIndex()

	var missing []string
	for _, col := range required {
		if _, ok := idx[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return models.ValidationResult{
			Valid:          false,
			MissingColumns: missing,
			Message:        "Missing columns: " + strings.Join(missing, ", "),
		}
	}

	nulls := map[string]int{}
	for _, row := range t.Rows {
		for _, col := range required {
			if isNull(t.cell(row, idx[col])) {
				nulls[col]++
			}
		}
	}
	if len(nulls) > 0 {
		return models.ValidationResult{
			Valid:       false,
			NullColumns: nulls,
			Message:     (&DataError{NullColumns: nulls}).Error(),
		}
	}
	return models.ValidationResult{Valid: true, Message: "Data validation passed"}
}

// ParseCustomers converts a validated table into customer records. Any
// churn column is ignored.
func ParseCustomers(t *Table) ([]models.CustomerRecord, error) {
	if v := ValidateTable(t, false); !v.Valid {
		return nil, &DataError{MissingColumns: v.MissingColumns, NullColumns: v.NullColumns}
	}
	idx := t.columnIndex()
	records := make([]models.CustomerRecord, 0, len(t.Rows))
	for i, row := range t.Rows {
		rec, err := parseCustomerRow(t, row, idx, i)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// ParseCustomerObjects converts JSON objects keyed by column name into
// customer records. An absent key is a missing column and a JSON null a null
// value, reported the same way as for tabular input.
func ParseCustomerObjects(objects []map[string]json.RawMessage) ([]models.CustomerRecord, error) {
	if len(objects) == 0 {
		return nil, &DataError{Reason: "no customers provided"}
	}
	table := &Table{Header: append([]string(nil), models.RequiredCustomerColumns...)}
	missing := map[string]bool{}
	nulls := map[string]int{}
	for _, obj := range objects {
		byName := make(map[string]json.RawMessage, len(obj))
		for k, v := range obj {
			byName[strings.ToLower(strings.TrimSpace(k))] = v
		}
		row := make([]string, len(table.Header))
		for j, col := range table.Header {
			raw, ok := byName[col]
			switch {
			case !ok:
				missing[col] = true
			case bytes.Equal(bytes.TrimSpace(raw), []byte("null")):
				nulls[col]++
			default:
				row[j] = jsonCell(raw)
			}
		}
		table.Rows = append(table.Rows, row)
	}

	if len(missing) > 0 || len(nulls) > 0 {
		err := &DataError{}
		for _, col := range table.Header {
			if missing[col] {
				err.MissingColumns = append(err.MissingColumns, col)
			}
		}
		if len(nulls) > 0 {
			err.NullColumns = nulls
		}
		return nil, err
	}
	return ParseCustomers(table)
}

// jsonCell renders a JSON scalar as a table cell: strings are unquoted and
// numbers keep their literal text.
func jsonCell(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}

// ParseTrainingSet converts a table with a churn column into a TrainingSet.
func ParseTrainingSet(t *Table) (models.TrainingSet, error) {
	if v := ValidateTable(t, true); !v.Valid {
		return models.TrainingSet{}, &DataError{MissingColumns: v.MissingColumns, NullColumns: v.NullColumns}
	}
	records, err := ParseCustomers(t)
	if err != nil {
		return models.TrainingSet{}, err
	}
	churnCol := t.columnIndex()[models.ColumnChurn]
	labels := make([]int, len(t.Rows))
	for i, row := range t.Rows {
		raw := t.cell(row, churnCol)
		y, err := parseLabel(raw)
		if err != nil {
			return models.TrainingSet{}, &DataError{Reason: fmt.Sprintf("row %d: column %s: %v", i+2, models.ColumnChurn, err)}
		}
		labels[i] = y
	}
	return models.TrainingSet{Records: records, Labels: labels}, nil
}

func parseCustomerRow(t *Table, row []string, idx map[string]int, i int) (models.CustomerRecord, error) {
	line := i + 2 // 1-based, after the header
	var firstErr error
	intCol := func(col string) int {
		v, err := parseNonNegativeInt(t.cell(row, idx[col]))
		if err != nil && firstErr == nil {
			firstErr = &DataError{Reason: fmt.Sprintf("row %d: column %s: %v", line, col, err)}
		}
		return v
	}
	floatCol := func(col string) float64 {
		v, err := parseNonNegativeFloat(t.cell(row, idx[col]))
		if err != nil && firstErr == nil {
			firstErr = &DataError{Reason: fmt.Sprintf("row %d: column %s: %v", line, col, err)}
		}
		return v
	}

	rec := models.CustomerRecord{
		CustomerID:       t.cell(row, idx[models.ColumnCustomerID]),
		TenureMonths:     intCol(models.ColumnTenureMonths),
		MonthlySpend:     floatCol(models.ColumnMonthlySpend),
		DataUsageGB:      floatCol(models.ColumnDataUsageGB),
		CallMinutes:      floatCol(models.ColumnCallMinutes),
		Complaints:       intCol(models.ColumnComplaints),
		LastRechargeDays: intCol(models.ColumnLastRechargeDays),
	}
	return rec, firstErr
}

// parseNonNegativeInt accepts integral values written as "12" or "12.0".
func parseNonNegativeInt(s string) (int, error) {
	f, err := parseNonNegativeFloat(s)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) {
		return 0, fmt.Errorf("%q is not an integer", s)
	}
	if f > math.MaxInt32 {
		return 0, fmt.Errorf("%q is out of range", s)
	}
	return int(f), nil
}

func parseNonNegativeFloat(s string) (float64, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a finite number", s)
	}
	if f < 0 {
		return 0, fmt.Errorf("%q is negative", s)
	}
	return f, nil
}

func parseLabel(s string) (int, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "0", "0.0", "false", "no":
		return 0, nil
	case "1", "1.0", "true", "yes":
		return 1, nil
	}
	return 0, fmt.Errorf("%q is not a 0/1 label", s)
}

// CalculateMetrics aggregates a dataset. labels and scored are optional
// (nil when unavailable).
func CalculateMetrics(records []models.CustomerRecord, labels []int, scored []models.ScoredCustomer) models.CustomerMetrics {
	m := models.CustomerMetrics{
		TotalCustomers:    len(records),
		TotalMonthlySpend: decimal.Zero.StringFixed(2),
		AvgMonthlySpend:   decimal.Zero.StringFixed(2),
	}
	if len(records) == 0 {
		return m
	}

	totalSpend := decimal.Zero
	var tenure, data float64
	for _, r := range records {
		totalSpend = totalSpend.Add(decimal.NewFromFloat(r.MonthlySpend))
		tenure += float64(r.TenureMonths)
		data += r.DataUsageGB
		m.TotalComplaints += r.Complaints
	}
	n := float64(len(records))
	m.TotalMonthlySpend = totalSpend.StringFixed(2)
	m.AvgMonthlySpend = totalSpend.Div(decimal.NewFromInt(int64(len(records)))).StringFixed(2)
	m.AvgTenure = tenure / n
	m.AvgDataUsage = data / n
	m.AvgComplaints = float64(m.TotalComplaints) / n

	if len(labels) == len(records) {
		churned := 0
		for _, y := range labels {
			churned += y
		}
		rate := float64(churned) / n
		m.ChurnRate = &rate
		m.ChurnedCustomers = &churned
	}
	if len(scored) > 0 {
		var risk float64
		high := 0
		for _, s := range scored {
			risk += s.ChurnProbability
			if s.ChurnProbability > MediumRiskUpperBound {
				high++
			}
		}
		avg := risk / float64(len(scored))
		m.AvgChurnRisk = &avg
		m.HighRiskCustomers = &high
	}
	return m
}

// Segments groups customers by spend quartile and by tenure band.
func Segments(records []models.CustomerRecord) models.CustomerSegments {
	seg := models.CustomerSegments{
		HighValue:            []string{},
		MediumValue:          []string{},
		LowValue:             []string{},
		NewCustomers:         []string{},
		EstablishedCustomers: []string{},
		LoyalCustomers:       []string{},
	}
	if len(records) == 0 {
		return seg
	}
	spend := make([]float64, len(records))
	for i, r := range records {
		spend[i] = r.MonthlySpend
	}
	q25 := quantile(spend, 0.25)
	q75 := quantile(spend, 0.75)

	for _, r := range records {
		switch {
		case r.MonthlySpend > q75:
			seg.HighValue = append(seg.HighValue, r.CustomerID)
		case r.MonthlySpend > q25:
			seg.MediumValue = append(seg.MediumValue, r.CustomerID)
		default:
			seg.LowValue = append(seg.LowValue, r.CustomerID)
		}
		switch {
		case r.TenureMonths <= 6:
			seg.NewCustomers = append(seg.NewCustomers, r.CustomerID)
		case r.TenureMonths <= 24:
			seg.EstablishedCustomers = append(seg.EstablishedCustomers, r.CustomerID)
		default:
			seg.LoyalCustomers = append(seg.LoyalCustomers, r.CustomerID)
		}
	}
	return seg
}

// WriteScoredCSV writes scored customers with the prediction columns appended.
func WriteScoredCSV(w io.Writer, scored []models.ScoredCustomer) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), models.RequiredCustomerColumns...), "churn_probability", "churn_prediction", "risk_level")
	if err := cw.Write(header); err != nil {
		return err
	}
	for _, s := range scored {
		row := []string{
			s.CustomerID,
			strconv.Itoa(s.TenureMonths),
			strconv.FormatFloat(s.MonthlySpend, 'f', -1, 64),
			strconv.FormatFloat(s.DataUsageGB, 'f', -1, 64),
			strconv.FormatFloat(s.CallMinutes, 'f', -1, 64),
			strconv.Itoa(s.Complaints),
			strconv.Itoa(s.LastRechargeDays),
			strconv.FormatFloat(s.ChurnProbability, 'f', 6, 64),
			strconv.Itoa(s.ChurnPrediction),
			string(s.RiskLevel),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteTrainingCSV writes a training set in the dataset column layout.
func WriteTrainingCSV(w io.Writer, ts models.TrainingSet) error {
	cw := csv.NewWriter(w)
	header := append(append([]string(nil), models.RequiredCustomerColumns...), models.ColumnChurn)
	if err := cw.Write(header); err != nil {
		return err
	}
	for i, r := range ts.Records {
		row := []string{
			r.CustomerID,
			strconv.Itoa(r.TenureMonths),
			strconv.FormatFloat(r.MonthlySpend, 'f', 2, 64),
			strconv.FormatFloat(r.DataUsageGB, 'f', 2, 64),
			strconv.FormatFloat(r.CallMinutes, 'f', 1, 64),
			strconv.Itoa(r.Complaints),
			strconv.Itoa(r.LastRechargeDays),
			strconv.Itoa(ts.Labels[i]),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
