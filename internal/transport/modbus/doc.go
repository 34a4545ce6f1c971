// Package modbus implements the ventilation unit transport over a Modbus TCP
// gateway using github.com/goburrow/modbus.
//
// Every raw parameter the session needs is described by one entry in a
// register map loaded from configuration:
//
//	transport:
//	  modbus:
//	    port: 502
//	    unit_id: 1
//	    registers:
//	      - name: fan_step
//	        table: holding
//	        address: 20
//	        kind: number
//	        writable: true
//
// Holding and input registers hold one 16-bit word, optionally signed and
// scaled. Coils hold booleans. The transport polls every register in map
// order and reports decoded values as named parameters.
package modbus
