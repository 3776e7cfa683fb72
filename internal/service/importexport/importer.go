package importexport

import (
	"context"
	"fmt"
	"log/slog"

	"gopkg.in/yaml.v3"

	"bi-demo/internal/domain"
	"bi-demo/internal/service/security"
)

// PermissionRegistry registers the access permissions of imported rows.
type PermissionRegistry interface {
	AddPermissionView(ctx context.Context, permission, view string) (*domain.PermissionView, error)
}

type assetKind struct {
	view  string
	label string
}

var kinds = map[string]assetKind{
	TypeDatabase:  {domain.ViewDatabase, "database"},
	TypeDataset:   {domain.ViewDataset, "dataset"},
	TypeChart:     {domain.ViewChart, "chart"},
	TypeDashboard: {domain.ViewDashboard, "dashboard"},
}

const missingField = "Missing data for required field."

// Service imports bundles.
type Service struct {
	databases  domain.DatabaseRepository
	datasets   domain.DatasetRepository
	charts     domain.ChartRepository
	dashboards domain.DashboardRepository
	perms      PermissionRegistry
	logger     *slog.Logger
}

// NewService creates an import Service.
func NewService(databases domain.DatabaseRepository, datasets domain.DatasetRepository, charts domain.ChartRepository,
	dashboards domain.DashboardRepository, perms PermissionRegistry, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		databases:  databases,
		datasets:   datasets,
		charts:     charts,
		dashboards: dashboards,
		perms:      perms,
		logger:     logger,
	}
}

// run holds the decoded configs of one import, indexed by uuid.
type run struct {
	user       *domain.User
	overwrite  bool
	primary    string
	databases  map[string]databaseConfig
	datasets   map[string]datasetConfig
	charts     map[string]chartConfig
	dashboards map[string]dashboardConfig
	paths      map[string]string

	dbIDs      map[string]*domain.Database
	datasetIDs map[string]int64
	chartIDs   map[string]int64
}

// Import loads a bundle whose metadata type must equal assetType. Only rows
// of assetType are replaced when they exist, and only when overwrite is
// set; the databases, datasets and charts they depend on are created when
// missing and otherwise reused.
func (s *Service) Import(ctx context.Context, assetType string, data []byte, overwrite bool) error {
	kind, ok := kinds[assetType]
	if !ok {
		return domain.ErrValidation("unknown asset type %q", assetType)
	}
	u, err := security.Require(ctx, domain.PermCanWrite, kind.view)
	if err != nil {
		return err
	}
	message := "Error importing " + kind.label

	b, err := ReadBundle(data)
	if err != nil {
		return err
	}
	if b.Metadata.Type != assetType {
		return &domain.ImportError{Message: message, Extra: map[string]any{
			metadataFile: map[string]any{"type": []string{fmt.Sprintf("Must be equal to %s.", assetType)}},
		}}
	}

	r := &run{
		user:       u,
		overwrite:  overwrite,
		primary:    assetType,
		databases:  map[string]databaseConfig{},
		datasets:   map[string]datasetConfig{},
		charts:     map[string]chartConfig{},
		dashboards: map[string]dashboardConfig{},
		paths:      map[string]string{},
		dbIDs:      map[string]*domain.Database{},
		datasetIDs: map[string]int64{},
		chartIDs:   map[string]int64{},
	}
	if extra := r.load(b); len(extra) > 0 {
		return &domain.ImportError{Message: message, Extra: extra}
	}
	if extra, err := s.checkExisting(ctx, r, kind); err != nil {
		return err
	} else if len(extra) > 0 {
		return &domain.ImportError{Message: message, Extra: extra}
	}

	switch assetType {
	case TypeDatabase:
		for id := range r.databases {
			if _, err := s.importDatabase(ctx, r, id); err != nil {
				return err
			}
		}
	case TypeDataset:
		for id := range r.datasets {
			if _, err := s.importDataset(ctx, r, id); err != nil {
				return err
			}
		}
	case TypeChart:
		for id := range r.charts {
			if _, err := s.importChart(ctx, r, id); err != nil {
				return err
			}
		}
	case TypeDashboard:
		for id := range r.dashboards {
			if err := s.importDashboard(ctx, r, id); err != nil {
				return err
			}
		}
	}
	s.logger.Info("bundle imported", "type", assetType, "user", u.Username, "overwrite", overwrite)
	return nil
}

// load decodes every YAML file of the bundle and reports unreadable files
// and missing required fields by path.
func (r *run) load(b *Bundle) map[string]any {
	extra := map[string]any{}
	decode := func(path string, out any) bool {
		if err := yaml.Unmarshal(b.Files[path], out); err != nil {
			extra[path] = "Not a valid YAML file"
			return false
		}
		return true
	}
	report := func(path string, missing []string) bool {
		if len(missing) == 0 {
			return true
		}
		fields := map[string]any{}
		for _, f := range missing {
			fields[f] = []string{missingField}
		}
		extra[path] = fields
		return false
	}

	for _, p := range b.Dir(DirDatabases) {
		var c databaseConfig
		if decode(p, &c) && report(p, c.missing()) {
			r.databases[c.UUID] = c
			r.paths[c.UUID] = p
		}
	}
	for _, p := range b.Dir(DirDatasets) {
		var c datasetConfig
		if decode(p, &c) && report(p, c.missing()) {
			r.datasets[c.UUID] = c
			r.paths[c.UUID] = p
		}
	}
	for _, p := range b.Dir(DirCharts) {
		var c chartConfig
		if decode(p, &c) && report(p, c.missing()) {
			r.charts[c.UUID] = c
			r.paths[c.UUID] = p
		}
	}
	for _, p := range b.Dir(DirDashboards) {
		var c dashboardConfig
		if decode(p, &c) && report(p, c.missing()) {
			r.dashboards[c.UUID] = c
			r.paths[c.UUID] = p
		}
	}
	return extra
}

func (s *Service) checkExisting(ctx context.Context, r *run, kind assetKind) (map[string]any, error) {
	if r.overwrite {
		return nil, nil
	}
	var uuids []string
	exists := func(id string) (bool, error) { return false, nil }
	switch r.primary {
	case TypeDatabase:
		for id := range r.databases {
			uuids = append(uuids, id)
		}
		exists = func(id string) (bool, error) { return found(s.databases.GetByUUID(ctx, id)) }
	case TypeDataset:
		for id := range r.datasets {
			uuids = append(uuids, id)
		}
		exists = func(id string) (bool, error) { return found(s.datasets.GetByUUID(ctx, id)) }
	case TypeChart:
		for id := range r.charts {
			uuids = append(uuids, id)
		}
		exists = func(id string) (bool, error) { return found(s.charts.GetByUUID(ctx, id)) }
	case TypeDashboard:
		for id := range r.dashboards {
			uuids = append(uuids, id)
		}
		exists = func(id string) (bool, error) { return found(s.dashboards.GetByUUID(ctx, id)) }
	}

	extra := map[string]any{}
	for _, id := range uuids {
		ok, err := exists(id)
		if err != nil {
			return nil, err
		}
		if ok {
			extra[r.paths[id]] = fmt.Sprintf("%s already exists and `overwrite=true` was not passed", titleCase(kind.label))
		}
	}
	return extra, nil
}

func found[T any](v *T, err error) (bool, error) {
	if err == nil {
		return v != nil, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *Service) importDatabase(ctx context.Context, r *run, id string) (*domain.Database, error) {
	if d, ok := r.dbIDs[id]; ok {
		return d, nil
	}
	existing, err := s.databases.GetByUUID(ctx, id)
	if err != nil && !isNotFound(err) {
		return nil, err
	}
	cfg, inBundle := r.databases[id]
	if existing != nil && (r.primary != TypeDatabase || !inBundle) {
		r.dbIDs[id] = existing
		return existing, nil
	}
	if !inBundle {
		return nil, domain.ErrValidation("database %s is neither in the bundle nor registered", id)
	}

	extra, err := jsonText(cfg.Extra)
	if err != nil {
		return nil, err
	}
	expose := true
	if cfg.ExposeInSQLLab != nil {
		expose = *cfg.ExposeInSQLLab
	}
	d := &domain.Database{
		UUID:           cfg.UUID,
		DatabaseName:   cfg.DatabaseName,
		SQLAlchemyURI:  cfg.SQLAlchemyURI,
		Extra:          extra,
		ExposeInSQLLab: expose,
		AllowCTAS:      cfg.AllowCTAS,
		AllowCVAS:      cfg.AllowCVAS,
		AllowDML:       cfg.AllowDML,
		CacheTimeout:   cfg.CacheTimeout,
	}
	if existing != nil {
		d.ID = existing.ID
	}
	saved, err := s.databases.Save(ctx, d)
	if err != nil {
		return nil, fmt.Errorf("import database %s: %w", cfg.DatabaseName, err)
	}
	if _, err := s.perms.AddPermissionView(ctx, domain.PermDatabaseAccess, saved.Perm()); err != nil {
		return nil, err
	}
	r.dbIDs[id] = saved
	return saved, nil
}

func (s *Service) importDataset(ctx context.Context, r *run, id string) (int64, error) {
	if dsID, ok := r.datasetIDs[id]; ok {
		return dsID, nil
	}
	existing, err := s.datasets.GetByUUID(ctx, id)
	if err != nil && !isNotFound(err) {
		return 0, err
	}
	cfg, inBundle := r.datasets[id]
	if existing != nil && (r.primary != TypeDataset || !inBundle) {
		r.datasetIDs[id] = existing.ID
		return existing.ID, nil
	}
	if !inBundle {
		return 0, domain.ErrValidation("dataset %s is neither in the bundle nor registered", id)
	}

	db, err := s.importDatabase(ctx, r, cfg.DatabaseUUID)
	if err != nil {
		return 0, err
	}
	extra, err := jsonText(cfg.Extra)
	if err != nil {
		return 0, err
	}
	ds := &domain.Dataset{
		UUID:        cfg.UUID,
		TableName:   cfg.TableName,
		Schema:      deref(cfg.Schema),
		SQL:         deref(cfg.SQL),
		DatabaseID:  db.ID,
		Description: deref(cfg.Description),
		MainDttmCol: deref(cfg.MainDttmCol),
		Extra:       extra,
	}
	if existing != nil {
		ds.ID = existing.ID
	}
	saved, err := s.datasets.Save(ctx, ds)
	if err != nil {
		return 0, fmt.Errorf("import dataset %s: %w", cfg.TableName, err)
	}
	if _, err := s.perms.AddPermissionView(ctx, domain.PermDatasourceAccess, saved.Perm(db.DatabaseName)); err != nil {
		return 0, err
	}
	r.datasetIDs[id] = saved.ID
	return saved.ID, nil
}

func (s *Service) importChart(ctx context.Context, r *run, id string) (int64, error) {
	if chartID, ok := r.chartIDs[id]; ok {
		return chartID, nil
	}
	existing, err := s.charts.GetByUUID(ctx, id)
	if err != nil && !isNotFound(err) {
		return 0, err
	}
	cfg, inBundle := r.charts[id]
	if existing != nil && (r.primary != TypeChart || !inBundle) {
		r.chartIDs[id] = existing.ID
		return existing.ID, nil
	}
	if !inBundle {
		return 0, domain.ErrValidation("chart %s is neither in the bundle nor registered", id)
	}

	dsID, err := s.importDataset(ctx, r, cfg.DatasetUUID)
	if err != nil {
		return 0, err
	}
	params, err := jsonText(cfg.Params)
	if err != nil {
		return 0, err
	}

	c := &domain.Chart{
		UUID:                 cfg.UUID,
		SliceName:            cfg.SliceName,
		VizType:              cfg.VizType,
		Params:               params,
		DatasourceID:         dsID,
		DatasourceType:       domain.DatasourceTypeTable,
		Description:          deref(cfg.Description),
		CacheTimeout:         cfg.CacheTimeout,
		CertifiedBy:          cfg.CertifiedBy,
		CertificationDetails: cfg.CertificationDetails,
	}
	var saved *domain.Chart
	if existing != nil {
		c.ID = existing.ID
		c.Owners = existing.Owners
		c.Dashboards = existing.Dashboards
		saved, err = s.charts.Update(ctx, c)
	} else {
		c.CreatedByID = &r.user.ID
		c.Owners = []int64{r.user.ID}
		saved, err = s.charts.Create(ctx, c)
	}
	if err != nil {
		return 0, fmt.Errorf("import chart %s: %w", cfg.SliceName, err)
	}
	r.chartIDs[id] = saved.ID
	return saved.ID, nil
}

func (s *Service) importDashboard(ctx context.Context, r *run, id string) error {
	cfg := r.dashboards[id]
	existing, err := s.dashboards.GetByUUID(ctx, id)
	if err != nil && !isNotFound(err) {
		return err
	}

	var chartIDs []int64
	for _, chartUUID := range cfg.chartUUIDs() {
		chartID, err := s.importChart(ctx, r, chartUUID)
		if err != nil {
			return err
		}
		chartIDs = append(chartIDs, chartID)
	}

	position, err := jsonText(cfg.Position)
	if err != nil {
		return err
	}
	metadata, err := jsonText(cfg.Metadata)
	if err != nil {
		return err
	}
	d := &domain.Dashboard{
		UUID:                 cfg.UUID,
		DashboardTitle:       cfg.DashboardTitle,
		Slug:                 cfg.Slug,
		PositionJSON:         position,
		CSS:                  deref(cfg.CSS),
		JSONMetadata:         metadata,
		Published:            cfg.Published,
		CertifiedBy:          cfg.CertifiedBy,
		CertificationDetails: cfg.CertificationDetails,
		Charts:               chartIDs,
	}
	if existing != nil {
		d.ID = existing.ID
		d.Owners = existing.Owners
		d.Roles = existing.Roles
		_, err = s.dashboards.Update(ctx, d)
	} else {
		d.CreatedByID = &r.user.ID
		d.Owners = []int64{r.user.ID}
		_, err = s.dashboards.Create(ctx, d)
	}
	if err != nil {
		return fmt.Errorf("import dashboard %s: %w", cfg.DashboardTitle, err)
	}
	return nil
}
