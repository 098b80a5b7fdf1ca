package featurestream

// Package featurestream encodes streams of flat, path-addressed feature
// properties as nested GeoJSON and JSON-FG documents.
//
// The package is organized into several sub-packages:
//
// - token: property events, paths and the streaming infrastructure
// - nesting: tracking of open objects and arrays, and the nesting strategy
// - stage: the encoding context and the ordered pipeline of stages
// - encoding/geojson: the feature encoder and its GeoJSON / JSON-FG stages
// - encoding/json: JSON writer
// - encoding/jpv: JPV (JSON Path-Value) writer
// - source: GeoJSON and CSV decoders producing events, and feature filters
// - config: configuration of the feature server
// - server: HTTP server exposing collections of features
//
// Features go through a pipeline:
//
//    decode source -> filter -> encoder stages -> JSON / JPV writer
//
// Each step is a streaming operation.  The encoder only keeps the stack of
// open containers of the current feature, so memory usage does not grow with
// the number of features and output starts straight away.
//
// There are two commands.  cmd/fp converts features read on stdin:
//
//  go install github.com/arnodel/featurestream/cmd/fp
//
// cmd/featured serves the collections listed in a YAML configuration file:
//
//  go install github.com/arnodel/featurestream/cmd/featured
