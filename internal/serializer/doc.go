// Package serializer encodes and decodes service definitions, one
// implementation per supported file extension. The registry picks a
// serializer by the extension of the file it is reading or writing.
package serializer
