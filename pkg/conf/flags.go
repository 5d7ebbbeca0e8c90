package conf

// CassandraAddress represents cassandra address flag.
var CassandraAddress = NewStringFlag("cassandra_addr", "Address of Cassandra DB endpoint for run metadata", "127.0.0.1")

// CassandraUsername holds the user name which will be presented when connecting to the cluster.
var CassandraUsername = NewStringFlag("cassandra_username", "The user name which will be presented when connecting to the cluster", "")

// CassandraPassword holds the password which will be presented when connecting to the cluster.
var CassandraPassword = NewStringFlag("cassandra_password", "The password which will be presented when connecting to the cluster", "")

// CassandraConnectionTimeout limits how long the initial connection to the cluster may take.
var CassandraConnectionTimeout = NewDurationFlag("cassandra_timeout", "Timeout for the connection to the Cassandra cluster", 0)
