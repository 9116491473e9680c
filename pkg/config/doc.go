// Package config manages pipeline definitions ("connections"): which source
// to launch, which destination to load into, and how the run is executed.
//
// # Document Layout
//
//	source:
//	  executable: "python source.py"   # or docker_image: "airbyte/source-faker:0.1.4"
//	  config: {...}                    # passed to the connector verbatim
//	  streams: users,orders            # optional, comma separated or a list
//	  parse_policy: lenient            # strict or lenient
//	destination:
//	  connector: bigquery
//	  config:
//	    buffer_size_max: 10000
//	    dataset: my-project.raw
//	remote_runner:
//	  type: direct
//	  config: {}
//
// # Loading
//
//	store := config.NewStore("connections")
//	conn, err := store.Load("faker_to_bigquery")
//	def, err := conn.Definition()
//
// ${VAR_NAME} references are substituted from the environment when the
// definition is decoded. The document itself keeps the references and its
// comments, so SetStreams followed by Save rewrites only the streams entry.
//
// # Environment Connections
//
// Containers run a connection handed to them through the environment:
// PULSAR_YAML_CONFIG holds the base64 document and PULSAR_ENTRYPOINT the
// command that replaces source.executable. See FromEnvironment.
package config
