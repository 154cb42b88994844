package config

import (
	"fmt"
	"os"
	"strings"
)

const (
	KindGround  = "groundctl"
	KindMission = "mission"
)

func Template(kind string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindGround, "ground":
		return groundTemplate, nil
	case KindMission:
		return missionTemplate, nil
	default:
		return "", fmt.Errorf("unknown config kind: %s", kind)
	}
}

func WriteTemplate(path, kind string, overwrite bool) error {
	template, err := Template(kind)
	if err != nil {
		return err
	}
	if !overwrite {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config already exists: %s", path)
		}
	}
	return os.WriteFile(path, []byte(template), 0o600)
}

const groundTemplate = `name = "groundctl"
address = "ws://localhost:8765"
# transport = "socketio"   # inferred from the address scheme when unset
client_type = "electron"
connect_timeout = "10s"
heartbeat_interval = "15s"
write_timeout = "10s"
max_reconnect_attempts = 3
reconnect_mode = "linear"
reconnect_step = "2s"
flight_log = "data/flight.db"
security_mode = "development"

[tls]
enabled = false
mutual = false
ca_file = ""
cert_file = ""
key_file = ""
server_name = ""
insecure_skip_verify = false

[bridge]
listen_addr = "127.0.0.1:9400"
cors_origins = ["http://localhost:3000"]
token = ""
`

const missionTemplate = `name = "survey-loop"

[[waypoints]]
id = "home"
name = "Home"
latitude = 37.774929
longitude = -122.419416
is_home = true

[[waypoints]]
id = "wp-1"
name = "Pier 39"
latitude = 37.808673
longitude = -122.409821
altitude = 40

[[waypoints]]
id = "wp-2"
name = "Fort Mason"
latitude = 37.806440
longitude = -122.431970
altitude = 35
`
