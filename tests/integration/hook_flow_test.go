package integration_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/cellar/backend/internal/auth"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/catalog/catalogtest"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/database"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flat"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/flatten"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/jobs"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/related"
	"github.com/MarcoPoloResearchLab/cellar/backend/internal/server"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	hookSigningSecret = "integration-secret"
	hookIssuer        = "cellar-content"
	hookAudience      = "cellar-api"
	jsonContentType   = "application/json"
)

type service struct {
	handler http.Handler
	worker  *jobs.Worker
	token   string
	fixture *catalogtest.Fixture
}

func newService(testContext *testing.T) service {
	testContext.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.OpenSQLite(filepath.Join(testContext.TempDir(), "cellar.db"), logger)
	if err != nil {
		testContext.Fatalf("failed to open database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		testContext.Fatalf("failed to access sql handle: %v", err)
	}
	testContext.Cleanup(func() {
		_ = sqlDB.Close()
	})

	repository, err := catalog.NewRepository(catalog.RepositoryConfig{Database: db, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct repository: %v", err)
	}
	flatStore, err := flat.NewStore(flat.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct flat store: %v", err)
	}
	setStore, err := related.NewStore(related.StoreConfig{Database: db, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct related store: %v", err)
	}
	syncer, err := flatten.NewSyncer(flatten.SyncerConfig{
		Source:          repository,
		Titles:          repository,
		Store:           flatStore,
		SecondaryLocale: "en",
		IDProvider:      flat.NewUUIDProvider(),
		Logger:          logger,
	})
	if err != nil {
		testContext.Fatalf("failed to construct syncer: %v", err)
	}
	aggregator, err := related.NewAggregator(related.AggregatorConfig{Flat: flatStore, Sets: setStore, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct aggregator: %v", err)
	}
	queue, err := jobs.NewQueue(jobs.QueueConfig{Database: db, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct queue: %v", err)
	}
	hooks, err := jobs.NewHooks(jobs.HooksConfig{Resolver: repository, Queue: queue, Logger: logger})
	if err != nil {
		testContext.Fatalf("failed to construct hooks: %v", err)
	}
	feed := server.NewChangeFeed()
	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		Queue:    queue,
		Handlers: jobs.Handlers(syncer, aggregator, queue, logger),
		Observer: feed,
		Logger:   logger,
	})
	if err != nil {
		testContext.Fatalf("failed to construct worker: %v", err)
	}

	issuer, err := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(hookSigningSecret),
		Issuer:        hookIssuer,
		Audience:      hookAudience,
		TokenTTL:      time.Minute,
	})
	if err != nil {
		testContext.Fatalf("failed to construct token issuer: %v", err)
	}
	token, _, err := issuer.IssueHookToken(context.Background(), "content-store")
	if err != nil {
		testContext.Fatalf("failed to issue token: %v", err)
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		Authorizer: issuer,
		Hooks:      hooks,
		Syncer:     syncer,
		Queue:      queue,
		Flat:       flatStore,
		Related:    setStore,
		Feed:       feed,
		Logger:     logger,
	})
	if err != nil {
		testContext.Fatalf("failed to construct handler: %v", err)
	}

	fixture := catalogtest.New(testContext, db)
	fixture.Standard()
	return service{handler: handler, worker: worker, token: token, fixture: fixture}
}

func (s service) post(testContext *testing.T, path string, body any) *httptest.ResponseRecorder {
	testContext.Helper()
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			testContext.Fatalf("failed to encode body: %v", err)
		}
	}
	request := httptest.NewRequest(http.MethodPost, path, &payload)
	request.Header.Set("Content-Type", jsonContentType)
	request.Header.Set("Authorization", "Bearer "+s.token)
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, request)
	return recorder
}

func (s service) get(path string) *httptest.ResponseRecorder {
	recorder := httptest.NewRecorder()
	s.handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return recorder
}

func (s service) drain(testContext *testing.T) int {
	testContext.Helper()
	processed, err := s.worker.Drain(context.Background())
	if err != nil {
		testContext.Fatalf("drain failed: %v", err)
	}
	return processed
}

func TestContentHookFlowsIntoFlatRecordsAndRelatedSets(testContext *testing.T) {
	svc := newService(testContext)
	svc.fixture.Wine("wine-veliko", "Veliko Rdeče", "winery-movia", "region-brda", "style-red")
	svc.fixture.Wine("wine-pinot", "Modri Pinot", "winery-movia", "region-brda", "style-red")
	svc.fixture.Variant(catalogtest.VariantSpec{ID: "variant-1", WineID: "wine-veliko", Vintage: catalogtest.Int(2019), Size: "0.75 l", StockOnHand: catalogtest.Int(6), Price: catalogtest.Float(30)})
	svc.fixture.Variant(catalogtest.VariantSpec{ID: "variant-2", WineID: "wine-pinot", StockOnHand: catalogtest.Int(2), Price: catalogtest.Float(32)})

	if recorder := svc.get("/variants/variant-1/flat"); recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected no flat record before the hook, got %d", recorder.Code)
	}

	recorder := svc.post(testContext, "/hooks/content", map[string]string{"collection": catalog.CollectionWineries, "id": "winery-movia"})
	if recorder.Code != http.StatusAccepted {
		testContext.Fatalf("unexpected hook status %d: %s", recorder.Code, recorder.Body.String())
	}
	var enqueued struct {
		Enqueued int `json:"enqueued"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &enqueued); err != nil {
		testContext.Fatalf("failed to decode hook response: %v", err)
	}
	if enqueued.Enqueued != 2 {
		testContext.Fatalf("expected 2 flatten jobs, got %d", enqueued.Enqueued)
	}

	if processed := svc.drain(testContext); processed != 4 {
		testContext.Fatalf("expected 4 processed jobs, got %d", processed)
	}

	recorder = svc.get("/variants/variant-1/flat")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected flat status %d", recorder.Code)
	}
	var flatRecord struct {
		OriginalVariantID string `json:"originalVariantId"`
		WineryTitle       string `json:"wineryTitle"`
		CountryTitleEn    string `json:"countryTitleEn"`
		StyleTitleEn      string `json:"styleTitleEn"`
		Slug              string `json:"slug"`
	}
	if err := json.Unmarshal(recorder.Body.Bytes(), &flatRecord); err != nil {
		testContext.Fatalf("failed to decode flat record: %v", err)
	}
	if flatRecord.OriginalVariantID != "variant-1" || flatRecord.WineryTitle != "Movia" {
		testContext.Fatalf("unexpected flat record %#v", flatRecord)
	}
	if flatRecord.CountryTitleEn != "Slovenia" || flatRecord.StyleTitleEn != "Red" {
		testContext.Fatalf("expected secondary titles, got %#v", flatRecord)
	}
	if flatRecord.Slug != "movia-veliko-rdece-goriska-brda-slovenija-2019-0-75-l" {
		testContext.Fatalf("unexpected slug %s", flatRecord.Slug)
	}

	recorder = svc.get("/variants/variant-1/related")
	if recorder.Code != http.StatusOK {
		testContext.Fatalf("unexpected related status %d", recorder.Code)
	}
	var set related.Set
	if err := json.Unmarshal(recorder.Body.Bytes(), &set); err != nil {
		testContext.Fatalf("failed to decode related set: %v", err)
	}
	if set.Count == 0 || set.Entries[0].RelatedVariantID != "variant-2" || set.Entries[0].Type != related.TypeWinerySame {
		testContext.Fatalf("unexpected related set %#v", set)
	}
	for _, entry := range set.Entries {
		if entry.RelatedVariantID == "variant-1" {
			testContext.Fatalf("related set must not list its own variant: %#v", set)
		}
	}
}

func TestAdminSyncRebuildsCatalogAndTombstonesOrphans(testContext *testing.T) {
	svc := newService(testContext)
	svc.fixture.Wine("wine-veliko", "Veliko Rdeče", "winery-movia", "region-brda", "style-red")
	svc.fixture.Variant(catalogtest.VariantSpec{ID: "variant-1", WineID: "wine-veliko", StockOnHand: catalogtest.Int(1)})
	svc.fixture.Variant(catalogtest.VariantSpec{ID: "variant-2", WineID: "wine-veliko", StockOnHand: catalogtest.Int(1)})

	if recorder := svc.post(testContext, "/admin/sync", nil); recorder.Code != http.StatusAccepted {
		testContext.Fatalf("unexpected sync status %d", recorder.Code)
	}
	svc.drain(testContext)
	if recorder := svc.get("/variants/variant-2/flat"); recorder.Code != http.StatusOK {
		testContext.Fatalf("expected flat record for variant-2, got %d", recorder.Code)
	}

	svc.fixture.DeleteVariant("variant-2")
	if recorder := svc.post(testContext, "/admin/sync", nil); recorder.Code != http.StatusAccepted {
		testContext.Fatalf("unexpected sync status %d", recorder.Code)
	}
	svc.drain(testContext)

	if recorder := svc.get("/variants/variant-2/flat"); recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected orphaned flat record to be tombstoned, got %d", recorder.Code)
	}
	if recorder := svc.get("/variants/variant-2/related"); recorder.Code != http.StatusNotFound {
		testContext.Fatalf("expected orphaned related set to be removed, got %d", recorder.Code)
	}
	if recorder := svc.get("/variants/variant-1/related"); recorder.Code != http.StatusOK {
		testContext.Fatalf("expected related set for variant-1, got %d", recorder.Code)
	}
}
