package directors

import (
	"fmt"

	"dualdb/src/engine"
	"dualdb/src/store"
	"dualdb/src/views"

	"go.uber.org/zap"
)

// ViewService owns the compiled plans and routes every document
// operation through them. Definitions compile once and are served from
// the plan cache until redefined.
type ViewService struct {
	store  *store.Store
	cache  *views.PlanCache
	mat    *engine.Materializer
	dec    *engine.Decomposer
	logger *zap.SugaredLogger
}

func NewViewService(s *store.Store, logger *zap.SugaredLogger) *ViewService {
	return &ViewService{
		store:  s,
		cache:  views.NewPlanCache(),
		mat:    engine.NewMaterializer(s, logger),
		dec:    engine.NewDecomposer(s, logger),
		logger: logger,
	}
}

// DefineView compiles a definition against the schema and caches the
// plan. Redefining a view replaces its plan.
func (s *ViewService) DefineView(def *views.ViewDefinition) (*views.MappingPlan, error) {
	plan, err := views.Compile(def, s.store.Schema(), s.logger)
	if err != nil {
		return nil, err
	}
	s.cache.Invalidate(def.Name)
	s.cache.Put(plan)
	return plan, nil
}

// Plan returns the cached plan for a view name.
func (s *ViewService) Plan(name string) (*views.MappingPlan, error) {
	plan, ok := s.cache.Get(name)
	if !ok {
		return nil, fmt.Errorf("duality view '%s' does not exist", name)
	}
	return plan, nil
}

// ViewNames lists the defined views.
func (s *ViewService) ViewNames() []string {
	return s.cache.Names()
}

// OpenCursor opens a lazy cursor over the view's documents.
func (s *ViewService) OpenCursor(name string, pred *engine.PathPredicate, opts engine.ReadOptions) (*engine.DocumentCursor, error) {
	plan, err := s.Plan(name)
	if err != nil {
		return nil, err
	}
	return s.mat.Materialize(plan, pred, opts)
}

// Query materializes every matching document of the view.
func (s *ViewService) Query(name string, pred *engine.PathPredicate, opts engine.ReadOptions) ([]*engine.Document, error) {
	cursor, err := s.OpenCursor(name, pred, opts)
	if err != nil {
		return nil, err
	}
	return cursor.All()
}

// Get materializes the single document whose key fields are given in
// JSON field names.
func (s *ViewService) Get(name string, keyDoc map[string]interface{}) (*engine.Document, error) {
	plan, err := s.Plan(name)
	if err != nil {
		return nil, err
	}
	key, err := s.rootKey(plan, keyDoc)
	if err != nil {
		return nil, err
	}
	return s.mat.MaterializeByKey(plan, key)
}

// Insert creates the document described by doc.
func (s *ViewService) Insert(name string, doc map[string]interface{}) (*engine.Document, error) {
	plan, err := s.Plan(name)
	if err != nil {
		return nil, err
	}
	return s.dec.Insert(plan, doc)
}

// Replace swaps the document for doc; the key comes from the document's
// own key fields, the expected version tag from its metadata.
func (s *ViewService) Replace(name string, doc map[string]interface{}) (*engine.Document, error) {
	plan, err := s.Plan(name)
	if err != nil {
		return nil, err
	}
	key, err := s.rootKey(plan, doc)
	if err != nil {
		return nil, err
	}
	return s.dec.Replace(plan, key, doc)
}

// MergePatch applies a merge patch to the document at keyDoc.
func (s *ViewService) MergePatch(name string, keyDoc, patch map[string]interface{}) (*engine.Document, error) {
	plan, err := s.Plan(name)
	if err != nil {
		return nil, err
	}
	key, err := s.rootKey(plan, keyDoc)
	if err != nil {
		return nil, err
	}
	return s.dec.MergePatch(plan, key, patch)
}

// Transform applies path operations to the document at keyDoc.
func (s *ViewService) Transform(name string, keyDoc map[string]interface{}, ops []engine.TransformOp, expectedTag string) (*engine.Document, error) {
	plan, err := s.Plan(name)
	if err != nil {
		return nil, err
	}
	key, err := s.rootKey(plan, keyDoc)
	if err != nil {
		return nil, err
	}
	return s.dec.Transform(plan, key, ops, expectedTag)
}

// Delete removes the document at keyDoc.
func (s *ViewService) Delete(name string, keyDoc map[string]interface{}, expectedTag string) error {
	plan, err := s.Plan(name)
	if err != nil {
		return err
	}
	key, err := s.rootKey(plan, keyDoc)
	if err != nil {
		return err
	}
	return s.dec.Delete(plan, key, expectedTag)
}

func (s *ViewService) rootKey(plan *views.MappingPlan, doc map[string]interface{}) (store.Key, error) {
	cols, err := plan.RootKey(doc)
	if err != nil {
		return nil, err
	}
	return store.Key(cols), nil
}
