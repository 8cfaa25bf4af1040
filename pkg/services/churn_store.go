package services

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

const (
	modelFileName      = "churn_model.json"
	scalerFileName     = "scaler.json"
	backupSuffix       = ".bak"
	artifactFormatV1   = 1
	artifactKindModel  = "gradient_boosting_classifier"
	artifactKindScaler = "standard_scaler"
)

// modelArtifact is the on-disk form of the fitted classifier.
type modelArtifact struct {
	FormatVersion int                         `json:"format_version"`
	Kind          string                      `json:"kind"`
	PairID        string                      `json:"pair_id"`
	TrainedAt     time.Time                   `json:"trained_at"`
	FeatureNames  []string                    `json:"feature_names"`
	Model         *gradientBoostingClassifier `json:"model"`
}

// scalerArtifact is the on-disk form of the fitted scaler.
type scalerArtifact struct {
	FormatVersion int             `json:"format_version"`
	Kind          string          `json:"kind"`
	PairID        string          `json:"pair_id"`
	Scaler        *standardScaler `json:"scaler"`
}

// trainedModel is the classifier and scaler held together as one unit.
type trainedModel struct {
	id        string
	trainedAt time.Time
	features  []string
	model     *gradientBoostingClassifier
	scaler    *standardScaler
}

// ModelStore persists the model/scaler pair at two fixed paths in one directory.
type ModelStore struct {
	dir    string
	rename func(oldpath, newpath string) error
}

// NewModelStore 指定ディレクトリにモデルを保存するストアを作成
func NewModelStore(dir string) *ModelStore {
	return &ModelStore{dir: dir, rename: os.Rename}
}

// Dir returns the storage directory.
func (s *ModelStore) Dir() string { return s.dir }

func (s *ModelStore) modelPath() string  { return filepath.Join(s.dir, modelFileName) }
func (s *ModelStore) scalerPath() string { return filepath.Join(s.dir, scalerFileName) }

// Save writes both artifacts to temp files first and renames them into place
// only after both were written and synced. The live pair is hard-linked to
// backups beforehand: if either install step fails the backups are restored,
// and if the process dies between the two renames Load recovers the previous
// pair from them.
func (s *ModelStore) Save(m *trainedModel) error {
	if m == nil || m.model == nil || m.scaler == nil {
		return fmt.Errorf("save churn model: incomplete model")
	}
	if m.id == "" {
		m.id = uuid.New().String()
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}

	modelTmp, err := writeTempJSON(s.dir, modelFileName, modelArtifact{
		FormatVersion: artifactFormatV1,
		Kind:          artifactKindModel,
		PairID:        m.id,
		TrainedAt:     m.trainedAt,
		FeatureNames:  m.features,
		Model:         m.model,
	})
	if err != nil {
		return fmt.Errorf("write model artifact: %w", err)
	}
	scalerTmp, err := writeTempJSON(s.dir, scalerFileName, scalerArtifact{
		FormatVersion: artifactFormatV1,
		Kind:          artifactKindScaler,
		PairID:        m.id,
		Scaler:        m.scaler,
	})
	if err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("write scaler artifact: %w", err)
	}

	hadScaler, err := s.backupLivePair()
	if err != nil {
		os.Remove(modelTmp)
		os.Remove(scalerTmp)
		return fmt.Errorf("back up current model: %w", err)
	}

	if err := s.rename(scalerTmp, s.scalerPath()); err != nil {
		os.Remove(modelTmp)
		os.Remove(scalerTmp)
		s.removeBackups()
		return fmt.Errorf("install scaler artifact: %w", err)
	}
	if err := s.rename(modelTmp, s.modelPath()); err != nil {
		os.Remove(modelTmp)
		if rerr := s.rollback(hadScaler); rerr != nil {
			return fmt.Errorf("install model artifact: %w (rollback failed: %v)", err, rerr)
		}
		return fmt.Errorf("install model artifact: %w", err)
	}
	syncDir(s.dir)
	s.removeBackups()
	return nil
}

// backupLivePair links the current artifacts to their backup paths. It
// reports whether a scaler backup was taken.
func (s *ModelStore) backupLivePair() (bool, error) {
	s.removeBackups()
	modelExists, err := fileExists(s.modelPath())
	if err != nil {
		return false, err
	}
	scalerExists, err := fileExists(s.scalerPath())
	if err != nil {
		return false, err
	}
	if modelExists {
		if err := linkOrCopy(s.modelPath(), s.modelPath()+backupSuffix); err != nil {
			return false, err
		}
	}
	if scalerExists {
		if err := linkOrCopy(s.scalerPath(), s.scalerPath()+backupSuffix); err != nil {
			s.removeBackups()
			return false, err
		}
	}
	syncDir(s.dir)
	return scalerExists, nil
}

// rollback puts the previous scaler back, or removes the half-installed one
// when there was none.
// A failed rollback keeps the backups so Load can still recover.
func (s *ModelStore) rollback(hadScaler bool) error {
	if !hadScaler {
		if err := os.Remove(s.scalerPath()); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	} else if err := s.rename(s.scalerPath()+backupSuffix, s.scalerPath()); err != nil {
		return err
	}
	s.removeBackups()
	syncDir(s.dir)
	return nil
}

func (s *ModelStore) removeBackups() {
	os.Remove(s.modelPath() + backupSuffix)
	os.Remove(s.scalerPath() + backupSuffix)
}

// Load reads the persisted pair. It returns (nil, nil) when nothing has been
// persisted and a *CorruptModelError when the artifacts are present but
// unreadable, incomplete or from different training runs.
func (s *ModelStore) Load() (*trainedModel, error) {
	modelExists, err := fileExists(s.modelPath())
	if err != nil {
		return nil, &CorruptModelError{Path: s.modelPath(), Err: err}
	}
	scalerExists, err := fileExists(s.scalerPath())
	if err != nil {
		return nil, &CorruptModelError{Path: s.scalerPath(), Err: err}
	}
	switch {
	case !modelExists && !scalerExists:
		return nil, nil
	case !modelExists:
		return nil, &CorruptModelError{Path: s.modelPath(), Err: errors.New("scaler present without model")}
	case !scalerExists:
		return nil, &CorruptModelError{Path: s.scalerPath(), Err: errors.New("model present without scaler")}
	}

	m, err := s.loadPair(s.modelPath(), s.scalerPath())
	if err == nil {
		return m, nil
	}
	if recovered, ok := s.recoverInterruptedSave(); ok {
		return recovered, nil
	}
	return nil, err
}

// recoverInterruptedSave handles a save that died between installing the
// scaler and the model: the live model and the scaler backup still form the
// previous pair, which is moved back into place.
func (s *ModelStore) recoverInterruptedSave() (*trainedModel, bool) {
	backup := s.scalerPath() + backupSuffix
	if ok, _ := fileExists(backup); !ok {
		return nil, false
	}
	m, err := s.loadPair(s.modelPath(), backup)
	if err != nil {
		return nil, false
	}
	if err := s.rename(backup, s.scalerPath()); err != nil {
		return nil, false
	}
	s.removeBackups()
	syncDir(s.dir)
	return m, true
}

func (s *ModelStore) loadPair(modelPath, scalerPath string) (*trainedModel, error) {
	var ma modelArtifact
	if err := readJSON(modelPath, &ma); err != nil {
		return nil, &CorruptModelError{Path: modelPath, Err: err}
	}
	var sa scalerArtifact
	if err := readJSON(scalerPath, &sa); err != nil {
		return nil, &CorruptModelError{Path: scalerPath, Err: err}
	}

	if ma.FormatVersion != artifactFormatV1 || ma.Kind != artifactKindModel || ma.Model == nil {
		return nil, &CorruptModelError{Path: modelPath, Err: fmt.Errorf("unsupported model artifact (version %d, kind %q)", ma.FormatVersion, ma.Kind)}
	}
	if sa.FormatVersion != artifactFormatV1 || sa.Kind != artifactKindScaler || sa.Scaler == nil {
		return nil, &CorruptModelError{Path: scalerPath, Err: fmt.Errorf("unsupported scaler artifact (version %d, kind %q)", sa.FormatVersion, sa.Kind)}
	}
	if ma.PairID == "" || ma.PairID != sa.PairID {
		return nil, &CorruptModelError{Path: s.dir, Err: fmt.Errorf("model pair id %q does not match scaler pair id %q", ma.PairID, sa.PairID)}
	}
	if err := ma.Model.validate(); err != nil {
		return nil, &CorruptModelError{Path: modelPath, Err: err}
	}
	if len(sa.Scaler.Mean) != ma.Model.NumFeatures || len(sa.Scaler.Scale) != ma.Model.NumFeatures {
		return nil, &CorruptModelError{Path: scalerPath, Err: fmt.Errorf("scaler has %d features, model expects %d", len(sa.Scaler.Mean), ma.Model.NumFeatures)}
	}

	return &trainedModel{
		id:        ma.PairID,
		trainedAt: ma.TrainedAt,
		features:  ma.FeatureNames,
		model:     ma.Model,
		scaler:    sa.Scaler,
	}, nil
}

func writeTempJSON(dir, name string, v interface{}) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return "", err
	}
	tmp := f.Name()
	enc := json.NewEncoder(f)
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(tmp)
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return "", err
	}
	return tmp, nil
}

// linkOrCopy hard-links src to dst, copying when links are unsupported.
func linkOrCopy(src, dst string) error {
	if err := os.Link(src, dst); err == nil {
		return nil
	}
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

func readJSON(path string, v interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}

func fileExists(path string) (bool, error) {
	info, err := os.Stat(path)
	if err == nil {
		if info.IsDir() {
			return false, fmt.Errorf("%s is a directory", path)
		}
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func syncDir(dir string) {
	if d, err := os.Open(dir); err == nil {
		_ = d.Sync()
		d.Close()
	}
}
