// Package aggregator is the server side of the sample pipeline. It accepts
// worker sessions over websocket, checks them against their announced
// schema, stores every sample in the dataset and answers it with an ack, a
// prediction or a close.
package aggregator
