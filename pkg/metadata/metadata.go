// Package metadata persists run metadata in Cassandra so finished runs stay
// queryable after their artifact trees rotate out.
package metadata

import (
	"encoding/json"
	"time"

	"github.com/gocql/gocql"
	"github.com/pkg/errors"

	"github.com/wikimedia/cloud-storage-performance-tests/pkg/conf"
	"github.com/wikimedia/cloud-storage-performance-tests/pkg/stack"
)

// Config encodes the settings for connecting to the database.
type Config struct {
	CassandraAddress           string
	CassandraUsername          string
	CassandraPassword          string
	CassandraConnectionTimeout time.Duration
}

// ConfigFromFlags applies the Cassandra settings from the command line flags
// and environment variables.
func ConfigFromFlags() Config {
	return Config{
		CassandraAddress:           conf.CassandraAddress.Value(),
		CassandraUsername:          conf.CassandraUsername.Value(),
		CassandraPassword:          conf.CassandraPassword.Value(),
		CassandraConnectionTimeout: conf.CassandraConnectionTimeout.Value(),
	}
}

// Store keeps the Cassandra session alive and tags every record with the run
// id.
type Store struct {
	runID   string
	config  Config
	session *gocql.Session
}

// NewStore returns the Store from a run id and configuration. Connect()
// still needs to be called to get an active Cassandra session.
func NewStore(runID string, config Config) *Store {
	return &Store{
		runID:  runID,
		config: config,
	}
}

// Connect creates a session to the Cassandra cluster and bootstraps the
// schema. This function should only be called once.
func (s *Store) Connect() error {
	cluster := gocql.NewCluster(s.config.CassandraAddress)

	cluster.Consistency = gocql.LocalOne
	cluster.SerialConsistency = gocql.LocalSerial
	cluster.ProtoVersion = 4
	cluster.Timeout = s.config.CassandraConnectionTimeout

	if s.config.CassandraUsername != "" && s.config.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: s.config.CassandraUsername,
			Password: s.config.CassandraPassword,
		}
	}

	session, err := cluster.CreateSession()
	if err != nil {
		return errors.Wrap(err, "could not connect to cassandra")
	}

	s.session = session

	if err := session.Query("CREATE KEYSPACE IF NOT EXISTS perftest WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': 1};").Exec(); err != nil {
		return err
	}

	// Schema consistency checks are ignored by CREATE queries, a plain
	// SELECT on the schema table forces one.
	if err := session.Query("SELECT * FROM system_schema.keyspaces;").Exec(); err != nil {
		return err
	}

	if err := session.Query("CREATE TABLE IF NOT EXISTS perftest.runs (run_id text, site text, date text, level text, record text, time timestamp, PRIMARY KEY ((run_id), level));").Exec(); err != nil {
		return err
	}

	if err := session.Query("SELECT * FROM system_schema.keyspaces;").Exec(); err != nil {
		return err
	}

	return nil
}

// StoreResultSet persists every test record of the set under the run id.
func (s *Store) StoreResultSet(resultSet stack.ResultSet) error {
	for _, level := range resultSet.Levels() {
		record := resultSet.Tests[level]

		serialized, err := json.Marshal(record)
		if err != nil {
			return errors.Wrapf(err, "could not serialize record of level %s", level)
		}

		err = s.session.Query(
			`INSERT INTO perftest.runs (run_id, site, date, level, record, time) VALUES (?, ?, ?, ?, ?, ?)`,
			s.runID, resultSet.Site, resultSet.Date, level.String(), string(serialized), time.Now()).Exec()
		if err != nil {
			return errors.Wrapf(err, "could not store record of level %s", level)
		}
	}

	return nil
}

// GetRun retrieves the stored records of one run, keyed by stack level.
func (s *Store) GetRun() (map[stack.Level]stack.TestRecord, error) {
	records := map[stack.Level]stack.TestRecord{}

	var levelName, serialized string
	iter := s.session.Query(
		`SELECT level, record FROM perftest.runs WHERE run_id = ?`, s.runID).Iter()
	for iter.Scan(&levelName, &serialized) {
		level, err := stack.ParseLevel(levelName)
		if err != nil {
			return nil, err
		}

		record := stack.TestRecord{}
		if err := json.Unmarshal([]byte(serialized), &record); err != nil {
			return nil, errors.Wrapf(err, "broken record of level %s in run %q", levelName, s.runID)
		}
		records[level] = record
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}

	return records, nil
}

// Close tears the Cassandra session down.
func (s *Store) Close() {
	if s.session != nil {
		s.session.Close()
	}
}
