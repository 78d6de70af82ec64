// Package config provides configuration parsing for the mirada client.
//
// The configuration is stored in mirada.json, by default in the current
// directory. This package handles loading, saving, and validating
// configuration.
//
// # Configuration File Structure
//
//	{
//	  "connection": {
//	    "uri": "wss://example.com:14500/",
//	    "username": "alice",
//	    "minServerVersion": "4.0"
//	  },
//	  "encryption": {
//	    "enabled": true,
//	    "key": "hunter2"
//	  },
//	  "keepalive": {
//	    "interval": "5s",
//	    "grace": "4s",
//	    "timeout": "60s"
//	  },
//	  "reconnect": {
//	    "attempts": 10,
//	    "delay": "2s"
//	  },
//	  "paint": {
//	    "staleness": "5s"
//	  },
//	  "metrics": {
//	    "enabled": true,
//	    "addr": ":9090"
//	  }
//	}
//
// # Usage
//
//	cfg, err := config.Load(".")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	fmt.Println("Server:", cfg.Connection.URI)
package config
