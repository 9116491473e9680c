package config_test

import (
	"fmt"
	"log"

	"github.com/ajitpratap0/pulsar/pkg/config"
)

// ExampleParse demonstrates reading a connection document and selecting
// the streams to sync.
func ExampleParse() {
	conn, err := config.Parse("faker_to_print", []byte(`
source:
  executable: "python source.py"
  config:
    count: 100
  streams: # OPTIONAL | string | Comma-separated list of streams
destination:
  connector: print
  config: {}
`))
	if err != nil {
		log.Fatal(err)
	}

	if err := conn.SetStreams([]string{"users", "purchases"}); err != nil {
		log.Fatal(err)
	}

	def, err := conn.Definition()
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(def.Source.Executable)
	fmt.Println(def.Source.Streams)
	fmt.Println(def.Destination.Connector)
	fmt.Println(def.RemoteRunner.Type)

	// Output:
	// python source.py
	// [users purchases]
	// print
	// direct
}

// ExampleFromEnvironment shows how a container receives its connection.
func ExampleFromEnvironment() {
	conn, _ := config.Parse("job", []byte("source:\n  docker_image: airbyte/source-faker:0.1.4\ndestination:\n  connector: print\n"))
	encoded, _ := config.EncodeEnvironment(conn)

	env := map[string]string{
		config.EnvEntrypoint: "python /airbyte/integration_code/main.py",
		config.EnvYAMLConfig: encoded,
	}
	fromEnv, err := config.FromEnvironment(func(k string) string { return env[k] })
	if err != nil {
		log.Fatal(err)
	}
	def, _ := fromEnv.Definition()
	fmt.Printf("executable=%q docker_image=%q\n", def.Source.Executable, def.Source.DockerImage)

	// Output:
	// executable="python /airbyte/integration_code/main.py" docker_image=""
}
