package config

import "strings"

// PIPELINE_STREAM_MAX_LEN maps to stream.max_len.
var envKeyReplacer = strings.NewReplacer(".", "_")
