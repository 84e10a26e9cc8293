// Package apps holds what every device management application shares.
//
// Each subpackage (command, configuration, bundle, packages, keystore,
// inventory) exposes a typed service over call.Caller and a Descriptor that
// dialect packages use to register the application's translators.
package apps
