// Package translator resolves conversion functions between message
// representations.
//
// A device management call crosses three representations: the domain
// message built by the caller, the device-dialect message understood by a
// device family, and the wire frame handed to the transport. Each hop is a
// translator registered for an exact (source Type, target Type) pair:
//
//	reg := translator.NewRegistry()
//	translator.MustRegister(reg, command.TypeExecRequest, agent.TypeJSONRequest, toAgent)
//	reg.Seal()
//
//	fn, err := translator.Lookup[*message.Request, *agent.Request](reg, src, dst)
//
// Registration happens once at startup; a duplicate pair is a startup
// error. Lookups after Seal are lock-free.
package translator
