package services

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"smartassist-api/pkg/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// ChurnPipeline owns feature derivation, training, persistence and scoring
// for the churn model. The fitted model/scaler pair is private state of the
// instance. Methods are not safe for concurrent use: callers must serialise
// Train and Score per model directory.
type ChurnPipeline struct {
	store    *ModelStore
	params   boostingParams
	model    *trainedModel
	logger   zerolog.Logger
	progress func(done, total int)
	now      func() time.Time
	// onFeatures sees the unscaled feature matrix of every Train and Score call.
	onFeatures func(stage string, x [][]float64)
}

// NewChurnPipeline 新しいチャーン予測パイプラインを作成
func NewChurnPipeline(modelDir string, logger zerolog.Logger) *ChurnPipeline {
	return &ChurnPipeline{
		store:  NewModelStore(modelDir),
		params: defaultBoostingParams,
		logger: logger.With().Str("component", "churn_pipeline").Logger(),
		now:    time.Now,
	}
}

// SetProgressFunc registers a callback invoked after every fitted tree.
func (p *ChurnPipeline) SetProgressFunc(fn func(done, total int)) {
	p.progress = fn
}

// ModelDir returns where the model/scaler pair is persisted.
func (p *ChurnPipeline) ModelDir() string {
	return p.store.Dir()
}

// IsTrained reports whether a model is resident in memory.
func (p *ChurnPipeline) IsTrained() bool {
	return p.model != nil
}

// LoadModel reads the persisted pair into memory. It returns false with a nil
// error when nothing has been persisted yet.
func (p *ChurnPipeline) LoadModel() (bool, error) {
	m, err := p.store.Load()
	if err != nil {
		p.logger.Error().Err(err).Msg("failed to load persisted churn model")
		return false, err
	}
	if m == nil {
		p.logger.Info().Str("model_dir", p.store.Dir()).Msg("no persisted churn model found")
		return false, nil
	}
	p.model = m
	p.logger.Info().Str("model_id", m.id).Time("trained_at", m.trainedAt).Msg("churn model loaded")
	return true, nil
}

// Train fits a new model on the training set, evaluates it on a stratified
// 20% hold-out, persists it and returns the evaluation report. A low AUC is
// not an error.
func (p *ChurnPipeline) Train(ts models.TrainingSet) (*models.EvaluationReport, error) {
	start := time.Now()
	if err := validateTrainingSet(ts); err != nil {
		return nil, err
	}

	x := featureMatrix(DeriveFeatures(ts.Records))
	p.observeFeatures("train", x)
	trainIdx, testIdx, err := stratifiedSplit(ts.Labels, evaluationFraction, splitSeed)
	if err != nil {
		return nil, err
	}
	xTrain, yTrain := selectRows(x, ts.Labels, trainIdx)
	xTest, yTest := selectRows(x, ts.Labels, testIdx)

	scaler, err := fitStandardScaler(xTrain)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	xTrainScaled, err := scaler.transform(xTrain)
	if err != nil {
		return nil, fmt.Errorf("scale training split: %w", err)
	}
	xTestScaled, err := scaler.transform(xTest)
	if err != nil {
		return nil, fmt.Errorf("scale evaluation split: %w", err)
	}

	clf := newGradientBoostingClassifier(p.params)
	if err := clf.fit(xTrainScaled, yTrain, p.progress); err != nil {
		return nil, fmt.Errorf("fit churn model: %w", err)
	}

	proba, err := clf.predictProba(xTestScaled)
	if err != nil {
		return nil, fmt.Errorf("predict evaluation split: %w", err)
	}
	predicted := make([]int, len(proba))
	for i, pr := range proba {
		predicted[i] = predictedClass(pr)
	}
	auc, err := rocAUC(yTest, proba)
	if err != nil {
		return nil, err
	}
	cm := confusionMatrix(yTest, predicted)

	candidate := &trainedModel{
		id:        uuid.New().String(),
		trainedAt: p.now().UTC(),
		features:  append([]string(nil), models.FeatureNames...),
		model:     clf,
		scaler:    scaler,
	}
	if err := p.store.Save(candidate); err != nil {
		p.logger.Error().Err(err).Msg("failed to persist churn model, keeping previous model")
		return nil, fmt.Errorf("persist churn model: %w", err)
	}
	p.model = candidate

	report := &models.EvaluationReport{
		ModelID:              candidate.id,
		TrainedAt:            candidate.trainedAt,
		AUC:                  auc,
		ClassificationReport: classificationReport(cm),
		ConfusionMatrix:      cm,
		FeatureImportance:    importanceMap(clf.Importances),
		TrainSize:            len(trainIdx),
		TestSize:             len(testIdx),
		TrainChurnRate:       churnRate(yTrain),
		TestChurnRate:        churnRate(yTest),
	}

	p.logger.Info().
		Str("model_id", candidate.id).
		Int("train_size", report.TrainSize).
		Int("test_size", report.TestSize).
		Float64("auc", auc).
		Dur("elapsed", time.Since(start)).
		Msg("churn model trained")
	return report, nil
}

// Score predicts churn for each record. The model is loaded from disk on
// first use; without one a *ModelNotTrainedError is returned and no rows are
// produced. The input slice is never modified.
func (p *ChurnPipeline) Score(records []models.CustomerRecord) ([]models.ScoredCustomer, error) {
	if err := p.ensureModel(); err != nil {
		return nil, err
	}
	if err := validateRecords(records); err != nil {
		return nil, err
	}

	x := featureMatrix(DeriveFeatures(records))
	p.observeFeatures("score", x)
	xScaled, err := p.model.scaler.transform(x)
	if err != nil {
		return nil, &CorruptModelError{Path: p.store.Dir(), Err: err}
	}
	proba, err := p.model.model.predictProba(xScaled)
	if err != nil {
		return nil, &CorruptModelError{Path: p.store.Dir(), Err: err}
	}

	scored := make([]models.ScoredCustomer, len(records))
	for i, r := range records {
		scored[i] = models.ScoredCustomer{
			CustomerRecord:   r,
			ChurnProbability: proba[i],
			ChurnPrediction:  predictedClass(proba[i]),
			RiskLevel:        RiskLevelFor(proba[i]),
		}
	}
	p.logger.Debug().Int("rows", len(scored)).Str("model_id", p.model.id).Msg("customers scored")
	return scored, nil
}

func (p *ChurnPipeline) observeFeatures(stage string, x [][]float64) {
	if p.onFeatures != nil {
		p.onFeatures(stage, x)
	}
}

// FeatureImportance returns the resident model's importances, highest first.
func (p *ChurnPipeline) FeatureImportance() ([]models.FeatureWeight, error) {
	if err := p.ensureModel(); err != nil {
		return nil, err
	}
	return sortedImportances(p.model.model.Importances), nil
}

// ModelInfo describes the resident model, loading it from disk if needed.
// A missing model is reported as Trained=false rather than an error.
func (p *ChurnPipeline) ModelInfo() (models.ModelInfo, error) {
	if err := p.ensureModel(); err != nil {
		var notTrained *ModelNotTrainedError
		if errors.As(err, &notTrained) {
			return models.ModelInfo{Trained: false}, nil
		}
		return models.ModelInfo{}, err
	}
	trainedAt := p.model.trainedAt
	return models.ModelInfo{
		Trained:           true,
		ModelID:           p.model.id,
		TrainedAt:         &trainedAt,
		FeatureImportance: sortedImportances(p.model.model.Importances),
	}, nil
}

func (p *ChurnPipeline) ensureModel() error {
	if p.model != nil {
		return nil
	}
	ok, err := p.LoadModel()
	if err != nil {
		return err
	}
	if !ok {
		return &ModelNotTrainedError{ModelDir: p.store.Dir()}
	}
	return nil
}

func sortedImportances(importances []float64) []models.FeatureWeight {
	return SortedImportances(importanceMap(importances))
}

// SortedImportances orders a feature importance map highest first, breaking
// ties by feature name.
func SortedImportances(importances map[string]float64) []models.FeatureWeight {
	out := make([]models.FeatureWeight, 0, len(importances))
	for name, v := range importances {
		out = append(out, models.FeatureWeight{Feature: name, Importance: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Importance == out[j].Importance {
			return out[i].Feature < out[j].Feature
		}
		return out[i].Importance > out[j].Importance
	})
	return out
}

func validateTrainingSet(ts models.TrainingSet) error {
	if len(ts.Records) == 0 {
		return &DataError{Reason: "training set is empty"}
	}
	if len(ts.Labels) == 0 {
		return &DataError{MissingColumns: []string{models.ColumnChurn}, Reason: "training requires the churn label"}
	}
	if len(ts.Labels) != len(ts.Records) {
		return &DataError{Reason: fmt.Sprintf("%d records but %d churn labels", len(ts.Records), len(ts.Labels))}
	}
	for i, y := range ts.Labels {
		if y != 0 && y != 1 {
			return &DataError{Reason: fmt.Sprintf("churn label at row %d must be 0 or 1, got %d", i, y)}
		}
	}
	return validateRecords(ts.Records)
}

// validateRecords enforces the non-negative, finite base feature invariant.
func validateRecords(records []models.CustomerRecord) error {
	for i, r := range records {
		var bad string
		switch {
		case r.TenureMonths < 0:
			bad = models.ColumnTenureMonths
		case r.MonthlySpend < 0 || math.IsNaN(r.MonthlySpend) || math.IsInf(r.MonthlySpend, 0):
			bad = models.ColumnMonthlySpend
		case r.DataUsageGB < 0 || math.IsNaN(r.DataUsageGB) || math.IsInf(r.DataUsageGB, 0):
			bad = models.ColumnDataUsageGB
		case r.CallMinutes < 0 || math.IsNaN(r.CallMinutes) || math.IsInf(r.CallMinutes, 0):
			bad = models.ColumnCallMinutes
		case r.Complaints < 0:
			bad = models.ColumnComplaints
		case r.LastRechargeDays < 0:
			bad = models.ColumnLastRechargeDays
		}
		if bad != "" {
			return &DataError{Reason: fmt.Sprintf("row %d (customer %q): %s must be a non-negative finite number", i, r.CustomerID, bad)}
		}
	}
	return nil
}
