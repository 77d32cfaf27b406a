package handler

import jsoniter "github.com/json-iterator/go"

// sessionJSON is the JSON codec for transport hot paths (WS frames,
// proxied bodies). Struct tags are shared with encoding/json.
var sessionJSON = jsoniter.ConfigCompatibleWithStandardLibrary
