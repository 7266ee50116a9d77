// Package config loads qdbbatch settings.
//
// A configuration is a single YAML document with five sections:
//
//	logging:
//	  level: info
//	  encoding: json
//	writer:
//	  capacity: 1024
//	  compression:
//	    algorithm: lz4
//	    level: 5
//	  mode: transactional
//	reader:
//	  compression: none
//	engine:
//	  shard_duration: 1h
//	  flush_interval: 5s
//	  queue_depth: 1024
//	metrics:
//	  enabled: false
//	  listen: ":9090"
//
// Load layers the file over Default and then applies environment
// overrides named after the key path, e.g. QDBBATCH_WRITER_MODE=fast or
// QDBBATCH_ENGINE_FLUSH_INTERVAL=250ms. Every loaded configuration is
// validated; failures are qdberrors of type config carrying a "field"
// detail.
//
// The Options helpers translate a Config into executor, writer and
// reference engine options so callers do not repeat the mapping.
package config
