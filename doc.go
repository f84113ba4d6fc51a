// Package main provides the go-batchsign CLI tool for batch Authenticode
// signing with signtool.exe.
//
// For the library API, see the batchsign subpackage:
//
//	import "github.com/aluedeke/go-batchsign/pkg/batchsign"
//
// # Installation
//
//	go install github.com/aluedeke/go-batchsign@latest
//
// # Usage
//
//	go-batchsign sign --input=build/files.txt --description="Example Corp" \
//	    --url=https://example.com --certfile=cert.pfx --pfxpass=secret
package main
