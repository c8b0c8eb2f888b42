// Package rules manages the threshold automation rules evaluated by the
// backend.
//
// Rules are never evaluated here. The client publishes add, delete and list
// requests on the management topic and mirrors the authoritative snapshot
// the backend publishes on the rule-list topic.
//
// A rule reads as:
//
//	IF mean(dht11.temperature) > 28.5 OVER LAST 5m THEN -> esp32_02/gpio/2/set, "ON"
package rules
