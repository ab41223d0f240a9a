// Package httputil holds the JSON response helpers shared by the ops API
// handlers. Handlers go through these instead of raw http.ResponseWriter
// calls so every endpoint emits the same envelope and error shape.
package httputil
