// Copyright 2025 ExpertRouter
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"

	"github.com/taskmesh/expertrouter/aggregator"
	"github.com/taskmesh/expertrouter/backends"
	"github.com/taskmesh/expertrouter/connectors/azureblob"
	"github.com/taskmesh/expertrouter/connectors/base"
	"github.com/taskmesh/expertrouter/connectors/cassandra"
	"github.com/taskmesh/expertrouter/connectors/config"
	"github.com/taskmesh/expertrouter/connectors/gcs"
	connhttp "github.com/taskmesh/expertrouter/connectors/http"
	"github.com/taskmesh/expertrouter/connectors/mongodb"
	"github.com/taskmesh/expertrouter/connectors/mysql"
	connpostgres "github.com/taskmesh/expertrouter/connectors/postgres"
	connredis "github.com/taskmesh/expertrouter/connectors/redis"
	connreg "github.com/taskmesh/expertrouter/connectors/registry"
	"github.com/taskmesh/expertrouter/connectors/s3"
	"github.com/taskmesh/expertrouter/humanloop"
	"github.com/taskmesh/expertrouter/invoker"
	"github.com/taskmesh/expertrouter/optimizer"
	"github.com/taskmesh/expertrouter/orchestrator"
	expreg "github.com/taskmesh/expertrouter/registry"
	"github.com/taskmesh/expertrouter/router"
	"github.com/taskmesh/expertrouter/shared/types"
)

func main() {
	log.Println("Starting ExpertRouter Orchestrator...")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orc, promReg, cleanup, err := build(ctx)
	if err != nil {
		log.Fatalf("failed to initialize orchestrator: %v", err)
	}
	defer cleanup()

	r := mux.NewRouter()
	r.HandleFunc("/health", healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/v1/requests", processRequestHandler(orc)).Methods("POST")

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	port := getEnv("PORT", "8081")
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      c.Handler(r),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		log.Printf("ExpertRouter Orchestrator listening on port %s", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("orchestrator HTTP server failed: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func processRequestHandler(orc *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req types.Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		result, err := orc.Process(r.Context(), req)
		if err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(result)
	}
}

func writeError(w http.ResponseWriter, err error) {
	var rErr *types.Error
	status := http.StatusInternalServerError
	if errors.As(err, &rErr) {
		switch rErr.Kind {
		case types.ErrInvalidRequest:
			status = http.StatusBadRequest
		case types.ErrTimeout:
			status = http.StatusGatewayTimeout
		case types.ErrCancelled:
			status = 499
		case types.ErrNoExpertsAvailable, types.ErrHumanLoopUnavailable:
			status = http.StatusServiceUnavailable
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// build wires every package into a running Orchestrator. Any piece that
// needs external infrastructure not configured via environment
// variables (Postgres, Redis, Bedrock, the human-loop service) degrades
// to an in-memory or no-op substitute rather than failing startup.
func build(ctx context.Context) (*orchestrator.Orchestrator, *prometheus.Registry, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var db *sql.DB
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		var err error
		db, err = sql.Open("postgres", dsn)
		if err != nil {
			return nil, nil, cleanup, err
		}
		closers = append(closers, func() { _ = db.Close() })
	}

	var redisClient *redis.Client
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: addr})
		closers = append(closers, func() { _ = redisClient.Close() })
	}

	promReg := prometheus.NewRegistry()

	expertRegistry, err := buildExpertRegistry(ctx, db, redisClient)
	if err != nil {
		return nil, nil, cleanup, err
	}
	if path := os.Getenv("REGISTRY_CONFIG_FILE"); path != "" {
		if err := expertRegistry.LoadConfigFile(path); err != nil {
			log.Printf("registry: initial config file load failed, continuing with base experts: %v", err)
		}
		expertRegistry.WatchConfigFile(ctx, path, 0)
	}

	backendMap, err := buildBackends(ctx, promReg, db)
	if err != nil {
		return nil, nil, cleanup, err
	}

	inv := invoker.New(backendMap, expertRegistry, invoker.Config{})
	rtr := router.New(expertRegistry)
	agg := aggregator.New(expertRegistry, aggregator.Config{})
	human := buildHumanLoop(redisClient)

	opt, err := buildOptimizer(ctx, db, rtr)
	if err != nil {
		return nil, nil, cleanup, err
	}
	go opt.Run(ctx)

	orc := orchestrator.New(expertRegistry, rtr, inv, agg, human, opt, orchestrator.Config{})
	return orc, promReg, cleanup, nil
}

func buildExpertRegistry(ctx context.Context, db *sql.DB, redisClient *redis.Client) (*expreg.Registry, error) {
	opts := []expreg.Option{}
	if db != nil {
		opts = append(opts, expreg.WithStore(expreg.NewPostgresStore(db)))
	}
	if redisClient != nil {
		opts = append(opts, expreg.WithSnapshotCache(expreg.NewRedisSnapshotCache(redisClient, "expertrouter:experts")))
	}
	return expreg.NewRegistry(ctx, opts...)
}

// buildBackends wires one backends.* implementation per base expert
// type (spec §3) plus a DynamicBackend fallback for synthesized
// experts, routed by request kind.
func buildBackends(ctx context.Context, promReg *prometheus.Registry, db *sql.DB) (map[types.ExpertType]invoker.Backend, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(getEnv("AWS_REGION", "us-east-1")))
	if err != nil {
		return nil, err
	}

	runtimeCfg := buildRuntimeConfigService(ctx, db)

	bedrockClient := bedrockruntime.NewFromConfig(awsCfg)
	modelID := getEnv("BEDROCK_MODEL_ID", "anthropic.claude-3-sonnet-20240229-v1:0")
	technical := buildBedrockBackend(ctx, bedrockClient, modelID, runtimeCfg)

	dataReg, err := buildConnectorRegistry(ctx)
	if err != nil {
		return nil, err
	}
	var dataConnectors []string

	runtimeConnectors, runtimeSource, err := runtimeCfg.GetConnectorConfigs(ctx, "*")
	if err != nil {
		log.Printf("data backend: runtime config service has no connectors (%v), falling back to per-connector env loaders", err)
	}

	pgConfig := findConnectorConfig(runtimeConnectors, "postgres")
	if pgConfig != nil {
		log.Printf("data backend: postgres config loaded from %s", runtimeSource)
	} else {
		pgConfig, err = config.LoadPostgresConfig("postgres")
		if err != nil {
			pgConfig = nil
		}
	}
	if pgConfig != nil {
		if err := config.ValidateConfig(pgConfig); err != nil {
			log.Printf("data backend: postgres config invalid: %v", err)
		} else {
			conn := connpostgres.NewPostgresConnector()
			if err := dataReg.Register("postgres", conn, pgConfig); err != nil {
				log.Printf("data backend: postgres connector unavailable: %v", err)
			} else {
				dataConnectors = append(dataConnectors, "postgres")
			}
		}
	}
	if dsn := os.Getenv("MYSQL_URL"); dsn != "" {
		conn := mysql.NewMySQLConnector()
		if err := dataReg.Register("mysql", conn, &base.ConnectorConfig{
			Name: "mysql", Type: "mysql", ConnectionURL: dsn, Timeout: 10 * time.Second,
		}); err != nil {
			log.Printf("data backend: mysql connector unavailable: %v", err)
		} else {
			dataConnectors = append(dataConnectors, "mysql")
		}
	}
	if dsn := os.Getenv("MONGODB_URL"); dsn != "" {
		conn := mongodb.NewMongoDBConnector()
		if err := dataReg.Register("mongodb", conn, &base.ConnectorConfig{
			Name: "mongodb", Type: "mongodb", ConnectionURL: dsn, Timeout: 10 * time.Second,
		}); err != nil {
			log.Printf("data backend: mongodb connector unavailable: %v", err)
		} else {
			dataConnectors = append(dataConnectors, "mongodb")
		}
	}
	cassConfig := findConnectorConfig(runtimeConnectors, "cassandra")
	if cassConfig != nil {
		log.Printf("data backend: cassandra config loaded from %s", runtimeSource)
	} else {
		cassConfig, err = config.LoadCassandraConfig("cassandra")
	}
	if err == nil && cassConfig != nil {
		if err := config.ValidateConfig(cassConfig); err != nil {
			log.Printf("data backend: cassandra config invalid: %v", err)
		} else {
			conn := cassandra.NewCassandraConnector()
			if err := dataReg.Register("cassandra", conn, cassConfig); err != nil {
				log.Printf("data backend: cassandra connector unavailable: %v", err)
			} else {
				dataConnectors = append(dataConnectors, "cassandra")
			}
		}
	} else if hosts := os.Getenv("CASSANDRA_HOSTS"); hosts != "" {
		conn := cassandra.NewCassandraConnector()
		if err := dataReg.Register("cassandra", conn, &base.ConnectorConfig{
			Name: "cassandra", Type: "cassandra", ConnectionURL: hosts, Timeout: 10 * time.Second,
		}); err != nil {
			log.Printf("data backend: cassandra connector unavailable: %v", err)
		} else {
			dataConnectors = append(dataConnectors, "cassandra")
		}
	}
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		host, port := addr, "6379"
		if h, p, err := net.SplitHostPort(addr); err == nil {
			host, port = h, p
		}
		portNum, _ := strconv.Atoi(port)
		conn := connredis.NewRedisConnector()
		if err := dataReg.Register("redis", conn, &base.ConnectorConfig{
			Name: "redis", Type: "redis", Timeout: 10 * time.Second,
			Options: map[string]interface{}{"host": host, "port": float64(portNum)},
		}); err != nil {
			log.Printf("data backend: redis connector unavailable: %v", err)
		} else {
			dataConnectors = append(dataConnectors, "redis")
		}
	}
	data := backends.NewDataBackend(dataReg, dataConnectors)

	security := backends.NewSecurityBackend(0.5)
	performance := backends.NewPerformanceBackend(promReg)

	apiBackend, err := httpBackendFor(dataReg, "api", os.Getenv("API_BACKEND_URL"))
	if err != nil {
		return nil, err
	}
	businessBackend, err := httpBackendFor(dataReg, "business", os.Getenv("BUSINESS_BACKEND_URL"))
	if err != nil {
		return nil, err
	}
	integrationBackend, err := httpBackendFor(dataReg, "integration", os.Getenv("INTEGRATION_BACKEND_URL"))
	if err != nil {
		return nil, err
	}

	dynamic := backends.NewDynamicBackend(map[types.Kind]interface {
		Invoke(ctx context.Context, expert types.Expert, req types.Request) (types.ExpertRecommendation, error)
	}{
		types.KindAnalysis: technical,
	}, apiBackend)

	return map[types.ExpertType]invoker.Backend{
		types.ExpertTechnical:      technical,
		types.ExpertAPI:            apiBackend,
		types.ExpertData:           data,
		types.ExpertBusiness:       businessBackend,
		types.ExpertIntegration:    integrationBackend,
		types.ExpertSecurity:       security,
		types.ExpertPerformance:    performance,
		invoker.DynamicBackendType: dynamic,
	}, nil
}

// buildRuntimeConfigService wires the three-tier LLM provider and
// connector config loader (spec §C.4): database row (Enterprise) over
// BEDROCK_CONFIG_FILE (OSS) over raw env vars,
// behind the shared config.ConfigCache TTL cache and a pluggable
// config.SecretsManager for resolving credentials_secret_arn.
func buildRuntimeConfigService(ctx context.Context, db *sql.DB) *config.RuntimeConfigService {
	var secretsMgr config.SecretsManager
	if region := os.Getenv("AWS_SECRETS_MANAGER_REGION"); region != "" {
		mgr, err := config.NewAWSSecretsManager(ctx, config.AWSSecretsManagerOptions{Region: region})
		if err != nil {
			log.Printf("runtime config: AWS Secrets Manager unavailable, falling back to env-var secrets: %v", err)
			secretsMgr = config.NewEnvSecretsManager(nil)
		} else {
			secretsMgr = mgr
		}
	} else {
		secretsMgr = config.NewEnvSecretsManager(nil)
	}

	svc := config.NewRuntimeConfigService(config.RuntimeConfigServiceOptions{
		DB:             db,
		SecretsManager: secretsMgr,
		SelfHosted:     db == nil || os.Getenv("SELF_HOSTED") != "",
	})

	if path := os.Getenv("BEDROCK_CONFIG_FILE"); path != "" {
		if loader, err := config.NewYAMLConfigFileLoader(path); err != nil {
			log.Printf("runtime config: failed to load %s: %v", path, err)
		} else {
			svc.SetConfigFileLoader(loader)
		}
	}

	svc.StartPeriodicCleanup(ctx, time.Minute)
	return svc
}

// buildBedrockBackend routes through runtimeCfg's three-tier LLM
// provider lookup into a multi-model, health/weight-routed
// BedrockBackend (spec §C.4); when no provider configuration is found
// anywhere, it falls back to a single BEDROCK_MODEL_ID target.
func buildBedrockBackend(ctx context.Context, client *bedrockruntime.Client, fallbackModelID string, runtimeCfg *config.RuntimeConfigService) *backends.BedrockBackend {
	providers, source, err := runtimeCfg.GetLLMProviderConfigs(ctx, "*")
	if err != nil || len(providers) == 0 {
		log.Printf("bedrock: no configured LLM providers, falling back to BEDROCK_MODEL_ID: %v", err)
		return backends.NewBedrockBackend(client, fallbackModelID)
	}
	log.Printf("bedrock: loaded %d LLM provider(s) from %s", len(providers), source)
	return backends.NewBedrockBackendFromProviders(client, providers, fallbackModelID)
}

// buildConnectorRegistry backs the data-expert connector registry with
// PostgreSQL persistence when DATABASE_URL is set, so connectors
// registered by one orchestrator replica (spec §3) become visible to
// its peers via periodic reload instead of each replica only ever
// seeing its own in-memory registrations.
func buildConnectorRegistry(ctx context.Context) (*connreg.Registry, error) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		return connreg.NewRegistry(), nil
	}

	reg, err := connreg.NewRegistryWithStorage(dsn)
	if err != nil {
		log.Printf("data backend: persistent connector registry unavailable, falling back to in-memory: %v", err)
		return connreg.NewRegistry(), nil
	}
	reg.StartPeriodicReload(ctx, 30*time.Second)
	return reg, nil
}

// findConnectorConfig returns the config named name from configs, or nil.
func findConnectorConfig(configs []*base.ConnectorConfig, name string) *base.ConnectorConfig {
	for _, cfg := range configs {
		if cfg.Name == name {
			return cfg
		}
	}
	return nil
}

// httpBackendFor registers an HTTP connector against baseURL (a no-op,
// always-erroring connector when baseURL is unset) and wraps it in a
// backends.HTTPBackend.
func httpBackendFor(reg *connreg.Registry, name, baseURL string) (*backends.HTTPBackend, error) {
	conn := connhttp.NewHTTPConnector()
	if baseURL == "" {
		return backends.NewHTTPBackend(conn, "/analyze"), nil
	}
	if err := reg.Register(name, conn, &base.ConnectorConfig{
		Name: name, Type: "http_api",
		Options: map[string]interface{}{"base_url": baseURL},
		Timeout: 10 * time.Second,
	}); err != nil {
		return nil, err
	}
	return backends.NewHTTPBackend(conn, "/analyze"), nil
}

func buildHumanLoop(redisClient *redis.Client) *humanloop.Adapter {
	baseURL := getEnv("HUMAN_LOOP_BASE_URL", "http://localhost:8082")
	transport := humanloop.NewHTTPTransport(baseURL)

	var opts []humanloop.Option
	if redisClient != nil {
		opts = append(opts, humanloop.WithSessionCache(humanloop.NewRedisSessionCache(redisClient, "expertrouter:sessions")))
	}
	if secret := os.Getenv("HUMAN_LOOP_JWT_SECRET"); secret != "" {
		opts = append(opts, humanloop.WithTokenSigner(humanloop.NewJWTSigner([]byte(secret), 15*time.Minute)))
	}
	return humanloop.New(transport, opts...)
}

// buildOptimizer wires the optimizer's retrain loop to rtr's own
// LearnedStrategy and HistoryStrategy, so a freshly trained
// CentroidScorer is swapped in atomically (optimizer can't import
// router directly, hence the closure-based LearnedAdapter; see its doc
// comment in optimizer/optimizer.go).
func buildOptimizer(ctx context.Context, db *sql.DB, rtr *router.Router) (*optimizer.Optimizer, error) {
	var store optimizer.ObservationStore
	if db != nil {
		store = optimizer.NewPostgresObservationStore(db)
	} else {
		store = optimizer.NewMemoryObservationStore()
	}

	var modelStore optimizer.ModelStore
	if bucket := os.Getenv("MODEL_STORE_BUCKET"); bucket != "" {
		conn, connType, err := modelStoreConnector(getEnv("MODEL_STORE_PROVIDER", "s3"))
		if err != nil {
			log.Printf("optimizer: %v", err)
		} else if err := conn.Connect(ctx, &base.ConnectorConfig{
			Name: "model-store", Type: connType,
			Options: map[string]interface{}{
				"region":      getEnv("AWS_REGION", "us-east-1"),
				"account_url": os.Getenv("AZURE_BLOB_ACCOUNT_URL"),
				"project_id":  os.Getenv("GCS_PROJECT_ID"),
			},
		}); err != nil {
			log.Printf("optimizer: model store %s connector unavailable: %v", connType, err)
		} else {
			modelStore = optimizer.NewObjectModelStore(conn, bucket, "")
		}
	}

	learned := optimizer.NewLearnedAdapter(func(model *optimizer.CentroidScorer) {
		rtr.Learned().Swap(model)
	})
	return optimizer.New(store, rtr.History(), learned, modelStore, optimizer.Config{}), nil
}

// modelStoreConnector picks the object-store connector backing
// optimizer.ObjectModelStore (spec §4.7: "pluggable model store — S3,
// Azure Blob, or GCS"). All three satisfy base.Connector identically,
// so ObjectModelStore itself never needs to know which one is live.
func modelStoreConnector(provider string) (base.Connector, string, error) {
	switch provider {
	case "s3":
		return s3.NewS3Connector(), "s3", nil
	case "azureblob":
		return azureblob.NewAzureBlobConnector(), "azureblob", nil
	case "gcs":
		return gcs.NewGCSConnector(), "gcs", nil
	default:
		return nil, "", fmt.Errorf("model store: unknown MODEL_STORE_PROVIDER %q", provider)
	}
}
