// Package harness runs YAML-defined generation scenarios: a profile, a
// historical dataset and a request, followed by assertions over the produced
// combinations. Scenarios double as executable documentation of the
// generation rules; deterministic ones can additionally be pinned to golden
// files.
package harness
