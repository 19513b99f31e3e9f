// Package dataset stores training samples received by the server. A session
// is one worker run; every sample step holds one array per session field.
package dataset
