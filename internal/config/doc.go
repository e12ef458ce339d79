// Package config handles selab's HCL configuration.
//
// # Overview
//
// selab reads an optional HCL file (selab.hcl). A JSON file with the same
// fields is accepted as a fallback. Missing fields take the values from
// [Default]. The loaded config is validated before use.
//
// # Search Order
//
//  1. the --config flag
//  2. $XDG_CONFIG_HOME/selab/selab.hcl (or $SELAB_CONFIG_DIR/selab.hcl)
//  3. /etc/selab/selab.hcl
//
// No file at all is not an error; defaults apply.
//
// # Example
//
//	simulation      = false
//	max_history     = 100
//	update_interval = "30s"
//	log_level       = "info"
//	metrics_listen  = "127.0.0.1:9477"
//
//	safe_boolean "httpd_read_user_content" {
//	    value  = false
//	    reason = "web server must not read home directories"
//	}
package config
