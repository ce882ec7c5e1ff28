package main

// General API documentation for swaggo. Regenerate ./docs with `swag init -g cmd/runnerd/docs.go -o docs`.
//
// @title           runnerd API
// @version         1.0
// @description     HTTP API for loading a model into an inference engine and streaming generations.
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
