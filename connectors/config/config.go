// Copyright 2025 ExpertRouter
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/taskmesh/expertrouter/connectors/base"
)

// LoadFromEnv loads a connector configuration from environment variables
// Environment variables should be prefixed with MCP_<CONNECTOR_NAME>_
// Example: MCP_POSTGRES_URL, MCP_CASSANDRA_USERNAME, etc.
func LoadFromEnv(connectorName, connectorType string) (*base.ConnectorConfig, error) {
	prefix := "MCP_" + connectorName + "_"

	config := &base.ConnectorConfig{
		Name:        connectorName,
		Type:        connectorType,
		Credentials: make(map[string]string),
		Options:     make(map[string]interface{}),
	}

	// Connection URL (required)
	connectionURL := os.Getenv(prefix + "URL")
	if connectionURL == "" {
		return nil, fmt.Errorf("missing required environment variable: %sURL", prefix)
	}
	config.ConnectionURL = connectionURL

	// Tenant ID (optional, defaults to *)
	config.TenantID = getEnvOrDefault(prefix+"TENANT_ID", "*")

	// Timeout (optional, defaults to 5s)
	timeoutStr := os.Getenv(prefix + "TIMEOUT")
	if timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, fmt.Errorf("invalid timeout format: %s", timeoutStr)
		}
		config.Timeout = timeout
	} else {
		config.Timeout = 5 * time.Second
	}

	// Max retries (optional, defaults to 3)
	maxRetriesStr := os.Getenv(prefix + "MAX_RETRIES")
	if maxRetriesStr != "" {
		maxRetries, err := strconv.Atoi(maxRetriesStr)
		if err != nil {
			return nil, fmt.Errorf("invalid max_retries format: %s", maxRetriesStr)
		}
		config.MaxRetries = maxRetries
	} else {
		config.MaxRetries = 3
	}

	// Credentials (optional)
	if username := os.Getenv(prefix + "USERNAME"); username != "" {
		config.Credentials["username"] = username
	}
	if password := os.Getenv(prefix + "PASSWORD"); password != "" {
		config.Credentials["password"] = password
	}
	if apiKey := os.Getenv(prefix + "API_KEY"); apiKey != "" {
		config.Credentials["api_key"] = apiKey
	}

	return config, nil
}

// LoadPostgresConfig loads PostgreSQL connector configuration
// Defaults to DATABASE_URL if available
func LoadPostgresConfig(connectorName string) (*base.ConnectorConfig, error) {
	// Try MCP-specific env first
	config, err := LoadFromEnv(connectorName, "postgres")
	if err == nil {
		return config, nil
	}

	// Fall back to DATABASE_URL
	databaseURL := os.Getenv("DATABASE_URL")
	if databaseURL == "" {
		return nil, fmt.Errorf("no PostgreSQL configuration found (tried MCP_%s_URL and DATABASE_URL)", connectorName)
	}

	config = &base.ConnectorConfig{
		Name:          connectorName,
		Type:          "postgres",
		ConnectionURL: databaseURL,
		Timeout:       5 * time.Second,
		MaxRetries:    3,
		TenantID:      "*",
		Options: map[string]interface{}{
			"max_open_conns":     25,
			"max_idle_conns":     5,
			"conn_max_lifetime":  "5m",
		},
	}

	return config, nil
}

// LoadCassandraConfig loads Cassandra connector configuration
func LoadCassandraConfig(connectorName string) (*base.ConnectorConfig, error) {
	config, err := LoadFromEnv(connectorName, "cassandra")
	if err != nil {
		return nil, err
	}

	// Cassandra-specific options
	if keyspace := os.Getenv("MCP_" + connectorName + "_KEYSPACE"); keyspace != "" {
		config.Options["keyspace"] = keyspace
	}
	if consistency := os.Getenv("MCP_" + connectorName + "_CONSISTENCY"); consistency != "" {
		config.Options["consistency"] = consistency
	} else {
		config.Options["consistency"] = "QUORUM"
	}

	return config, nil
}

// getEnvOrDefault returns environment variable value or default if not set
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// ValidateConfig validates a connector configuration
func ValidateConfig(config *base.ConnectorConfig) error {
	if config.Name == "" {
		return fmt.Errorf("connector name is required")
	}
	if config.Type == "" {
		return fmt.Errorf("connector type is required")
	}
	if config.ConnectionURL == "" {
		return fmt.Errorf("connection URL is required for %s connector", config.Type)
	}
	if config.Timeout <= 0 {
		return fmt.Errorf("timeout must be positive")
	}
	if config.MaxRetries < 0 {
		return fmt.Errorf("max retries cannot be negative")
	}
	return nil
}
