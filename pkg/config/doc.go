/*
Package config loads and validates the engine configuration.

Configuration is one YAML file (aetherius.yaml by convention) unmarshalled
over the defaults from Default(), so a partial file only overrides what it
mentions. Durations are written as Go duration strings:

	server:
	  jar_path: server.jar
	  working_dir: /srv/minecraft
	  stop_timeout: 30s
	daemon:
	  socket_path: /tmp/aetherius.sock
	  metrics_addr: 127.0.0.1:9815

Before parsing, a .env file next to the config is preloaded into the
environment (godotenv), and ${VAR} / ${VAR:-default} references in the
YAML are expanded. Unset variables without a default expand to empty and
are caught by Validate when they matter.

The server.command list overrides the whole launch argv for servers not
started as "java -jar"; tests use it to run stub children.
*/
package config
