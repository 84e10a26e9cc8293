// Package influxdb records device management call metrics in InfluxDB.
//
// It wraps the official influxdb-client-go v2 library. *Client implements
// call.Observer: plugged into the caller, it writes one point to the
// device_calls measurement per call, tagged with the application, method
// and outcome.
//
// # Usage
//
//	client, err := influxdb.Connect(cfg.InfluxDB)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
//	caller, err := call.New(call.Deps{
//	    // ...
//	    Observers: []call.Observer{client},
//	})
//
// # Error Handling
//
// Writes are non-blocking and batched according to batch_size and
// flush_interval; write failures are reported through SetOnError.
// Connection and health check errors are returned directly.
package influxdb
