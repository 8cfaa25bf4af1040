package models

import "time"

// Column names of the customer dataset.
const (
	ColumnCustomerID       = "customer_id"
	ColumnTenureMonths     = "tenure_months"
	ColumnMonthlySpend     = "monthly_spend"
	ColumnDataUsageGB      = "data_usage_gb"
	ColumnCallMinutes      = "call_minutes"
	ColumnComplaints       = "complaints"
	ColumnLastRechargeDays = "last_recharge_days"
	ColumnChurn            = "churn"
)

// Names of the derived features, in matrix order after the base features.
const (
	FeatureSpendPerMonth     = "spend_per_month"
	FeatureDataPerMonth      = "data_per_month"
	FeatureComplaintRate     = "complaint_rate"
	FeatureRechargeFrequency = "recharge_frequency"
)

// RequiredCustomerColumns are the columns every customer dataset must carry.
var RequiredCustomerColumns = []string{
	ColumnCustomerID,
	ColumnTenureMonths,
	ColumnMonthlySpend,
	ColumnDataUsageGB,
	ColumnCallMinutes,
	ColumnComplaints,
	ColumnLastRechargeDays,
}

// BaseFeatureNames 学習に使う6つの基本特徴量
var BaseFeatureNames = []string{
	ColumnTenureMonths,
	ColumnMonthlySpend,
	ColumnDataUsageGB,
	ColumnCallMinutes,
	ColumnComplaints,
	ColumnLastRechargeDays,
}

// FeatureNames is the full 10-column feature order (6 base + 4 derived).
var FeatureNames = []string{
	ColumnTenureMonths,
	ColumnMonthlySpend,
	ColumnDataUsageGB,
	ColumnCallMinutes,
	ColumnComplaints,
	ColumnLastRechargeDays,
	FeatureSpendPerMonth,
	FeatureDataPerMonth,
	FeatureComplaintRate,
	FeatureRechargeFrequency,
}

// CustomerRecord represents one row of the customer dataset.
type CustomerRecord struct {
	CustomerID       string  `json:"customer_id"`
	TenureMonths     int     `json:"tenure_months"`      // 契約月数
	MonthlySpend     float64 `json:"monthly_spend"`      // 月額利用料
	DataUsageGB      float64 `json:"data_usage_gb"`      // データ使用量 (GB)
	CallMinutes      float64 `json:"call_minutes"`       // 通話時間 (分)
	Complaints       int     `json:"complaints"`         // 苦情件数
	LastRechargeDays int     `json:"last_recharge_days"` // 最終チャージからの日数
}

// TrainingSet keeps the churn label apart from the feature columns so a
// scoring caller can never pass a label by accident.
type TrainingSet struct {
	Records []CustomerRecord `json:"records"`
	Labels  []int            `json:"labels"` // 0 = retained, 1 = churned
}

// DerivedFeatures 基本特徴量から計算される比率特徴量
type DerivedFeatures struct {
	SpendPerMonth     float64 `json:"spend_per_month"`
	DataPerMonth      float64 `json:"data_per_month"`
	ComplaintRate     float64 `json:"complaint_rate"`
	RechargeFrequency float64 `json:"recharge_frequency"`
}

// DerivedRecord is a CustomerRecord with its derived features appended.
type DerivedRecord struct {
	CustomerRecord
	Derived DerivedFeatures `json:"derived"`
}

// Vector returns the 10 features in FeatureNames order.
func (r DerivedRecord) Vector() []float64 {
	return []float64{
		float64(r.TenureMonths),
		r.MonthlySpend,
		r.DataUsageGB,
		r.CallMinutes,
		float64(r.Complaints),
		float64(r.LastRechargeDays),
		r.Derived.SpendPerMonth,
		r.Derived.DataPerMonth,
		r.Derived.ComplaintRate,
		r.Derived.RechargeFrequency,
	}
}

// RiskLevel is the coarse churn risk tier.
type RiskLevel string

const (
	RiskLow    RiskLevel = "Low"
	RiskMedium RiskLevel = "Medium"
	RiskHigh   RiskLevel = "High"
)

// ScoredCustomer represents a customer with churn predictions attached.
type ScoredCustomer struct {
	CustomerRecord
	ChurnProbability float64   `json:"churn_probability"`
	ChurnPrediction  int       `json:"churn_prediction"`
	RiskLevel        RiskLevel `json:"risk_level"`
}

// ClassMetrics precision/recall/F1 for a single class
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1Score   float64 `json:"f1_score"`
	Support   int     `json:"support"`
}

// ClassificationReport is the structured per-class evaluation plus averages.
type ClassificationReport struct {
	Classes     map[string]ClassMetrics `json:"classes"` // "0" / "1"
	Accuracy    float64                 `json:"accuracy"`
	MacroAvg    ClassMetrics            `json:"macro_avg"`
	WeightedAvg ClassMetrics            `json:"weighted_avg"`
	Text        string                  `json:"text"` // 表形式のテキスト表現
}

// EvaluationReport is returned by a training run.
type EvaluationReport struct {
	ModelID              string               `json:"model_id"`
	TrainedAt            time.Time            `json:"trained_at"`
	AUC                  float64              `json:"auc"`
	ClassificationReport ClassificationReport `json:"classification_report"`
	ConfusionMatrix      [2][2]int            `json:"confusion_matrix"` // rows: actual, cols: predicted
	FeatureImportance    map[string]float64   `json:"feature_importance"`
	TrainSize            int                  `json:"train_size"`
	TestSize             int                  `json:"test_size"`
	TrainChurnRate       float64              `json:"train_churn_rate"`
	TestChurnRate        float64              `json:"test_churn_rate"`
}

// FeatureWeight is one entry of a sorted feature importance list.
type FeatureWeight struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// ModelInfo summarises the resident churn model.
type ModelInfo struct {
	Trained           bool            `json:"trained"`
	ModelID           string          `json:"model_id,omitempty"`
	TrainedAt         *time.Time      `json:"trained_at,omitempty"`
	FeatureImportance []FeatureWeight `json:"feature_importance,omitempty"`
}

// ValidationResult データセット検証の結果
type ValidationResult struct {
	Valid          bool           `json:"valid"`
	MissingColumns []string       `json:"missing_columns,omitempty"`
	NullColumns    map[string]int `json:"null_columns,omitempty"` // 列名 -> null件数
	Message        string         `json:"message"`
}

// CustomerMetrics aggregates a customer dataset.
type CustomerMetrics struct {
	TotalCustomers    int      `json:"total_customers"`
	AvgTenure         float64  `json:"avg_tenure"`
	TotalMonthlySpend string   `json:"total_monthly_spend"` // decimal string, 2dp
	AvgMonthlySpend   string   `json:"avg_monthly_spend"`   // decimal string, 2dp
	AvgDataUsage      float64  `json:"avg_data_usage"`
	TotalComplaints   int      `json:"total_complaints"`
	AvgComplaints     float64  `json:"avg_complaints"`
	ChurnRate         *float64 `json:"churn_rate,omitempty"`
	ChurnedCustomers  *int     `json:"churned_customers,omitempty"`
	AvgChurnRisk      *float64 `json:"avg_churn_risk,omitempty"`
	HighRiskCustomers *int     `json:"high_risk_customers,omitempty"`
}

// CustomerSegments lists customer ids per behavioural segment.
type CustomerSegments struct {
	HighValue            []string `json:"high_value"`
	MediumValue          []string `json:"medium_value"`
	LowValue             []string `json:"low_value"`
	NewCustomers         []string `json:"new_customers"`         // tenure <= 6
	EstablishedCustomers []string `json:"established_customers"` // 6 < tenure <= 24
	LoyalCustomers       []string `json:"loyal_customers"`       // tenure > 24
}
