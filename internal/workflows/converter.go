package workflows

import "go.temporal.io/sdk/converter"

// DataConverter compresses payloads. Extracted text and chunk lists travel
// through workflow history, and every client and worker must agree on it.
func DataConverter() converter.DataConverter {
	return converter.NewCodecDataConverter(
		converter.GetDefaultDataConverter(),
		converter.NewZlibCodec(converter.ZlibCodecOptions{AlwaysEncode: true}),
	)
}
