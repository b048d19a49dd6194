package wasmbin_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wasmstack/wasmstack/wasmbin"
	"github.com/wasmstack/wasmstack/wasmtype"
)

// section builds a section with the given id from already-encoded content,
// prefixing it with a LEB128 byte count. Every test value here fits in one
// LEB128 byte, so plain byte(n) suffices.
func section(id byte, content ...byte) []byte {
	out := []byte{id, byte(len(content))}
	return append(out, content...)
}

func header() []byte {
	return []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
}

// addModule encodes a minimal module exporting a function `add` of type
// (i32, i32) -> i32 that computes local 0 + local 1.
func addModule() []byte {
	b := header()
	b = append(b, section(1, // type
		0x01,             // 1 functype
		0x60,             // func form
		0x02, 0x7f, 0x7f, // params: i32 i32
		0x01, 0x7f, // results: i32
	)...)
	b = append(b, section(3, // function
		0x01, 0x00, // 1 function, type index 0
	)...)
	b = append(b, section(7, // export
		0x01, // 1 export
		0x03, 'a', 'd', 'd',
		0x00, 0x00, // kind=func, index=0
	)...)
	b = append(b, section(10, // code
		0x01,       // 1 entry
		0x07,       // body size
		0x00,       // 0 local decls
		0x20, 0x00, // local.get 0
		0x20, 0x01, // local.get 1
		0x6a, // i32.add
		0x0b, // end
	)...)
	return b
}

func TestDecodeMinimalModule(t *testing.T) {
	m, err := wasmbin.Decode(addModule())
	require.NoError(t, err)

	require.Len(t, m.Types, 1)
	require.Equal(t, []wasmtype.ValType{wasmtype.I32, wasmtype.I32}, m.Types[0].Params)
	require.Equal(t, []wasmtype.ValType{wasmtype.I32}, m.Types[0].Results)

	require.Len(t, m.Functions, 1)
	require.Equal(t, uint32(0), m.Functions[0])

	require.Len(t, m.Exports, 1)
	require.Equal(t, "add", m.Exports[0].Name)
	require.Equal(t, wasmtype.ExternFunc, m.Exports[0].Kind)

	require.Len(t, m.Code, 1)
	require.Equal(t, uint32(0), m.Code[0].TypeIdx)
	require.Empty(t, m.Code[0].DeclaredLocals)

	code := m.Code[0].Code.Bytes(m.Bytecode)
	require.Equal(t, []byte{0x20, 0x00, 0x20, 0x01, 0x6a}, code)
}

func TestDecodeInvalidMagic(t *testing.T) {
	bad := append([]byte{0x00, 0x61, 0x73, 0x99}, header()[4:]...)
	_, err := wasmbin.Decode(bad)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "InvalidMagic", de.Kind)
}

func TestDecodeInvalidVersion(t *testing.T) {
	bad := append([]byte{0x00, 0x61, 0x73, 0x6d}, 0x02, 0x00, 0x00, 0x00)
	_, err := wasmbin.Decode(bad)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "InvalidBinaryFormatVersion", de.Kind)
}

func TestDecodeSectionOutOfOrder(t *testing.T) {
	b := header()
	b = append(b, section(3, 0x01, 0x00)...) // function before type
	b = append(b, section(1, 0x01, 0x60, 0x00, 0x00)...)
	_, err := wasmbin.Decode(b)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "SectionOutOfOrder", de.Kind)
}

func TestDecodeDuplicateExportName(t *testing.T) {
	b := header()
	b = append(b, section(1, 0x01, 0x60, 0x00, 0x00)...)
	b = append(b, section(3, 0x02, 0x00, 0x00)...)
	b = append(b, section(7,
		0x02,
		0x01, 'a', 0x00, 0x00,
		0x01, 'a', 0x00, 0x01,
	)...)
	b = append(b, section(10,
		0x02,
		0x02, 0x00, 0x0b,
		0x02, 0x00, 0x0b,
	)...)
	_, err := wasmbin.Decode(b)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "DuplicateExportName", de.Kind)
}

func TestDecodeFuncCodeMismatch(t *testing.T) {
	b := header()
	b = append(b, section(1, 0x01, 0x60, 0x00, 0x00)...)
	b = append(b, section(3, 0x01, 0x00)...) // 1 declared function
	// no code section at all
	_, err := wasmbin.Decode(b)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "FunctionAndCodeSectionsHaveDifferentLengths", de.Kind)
}

func TestDecodeMultiMemoryRejected(t *testing.T) {
	b := header()
	b = append(b, section(5,
		0x02,
		0x00, 0x01,
		0x00, 0x01,
	)...)
	_, err := wasmbin.Decode(b)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "UnsupportedMultipleMemoriesProposal", de.Kind)
}

func TestDecodeDataCountMismatch(t *testing.T) {
	b := header()
	b = append(b, section(12, 0x02)...) // DataCount = 2, but no data section
	_, err := wasmbin.Decode(b)
	require.Error(t, err)
	var de *wasmbin.DecodeError
	require.ErrorAs(t, err, &de)
	require.Equal(t, "DataCountAndDataSectionsLengthAreDifferent", de.Kind)
}

func TestDecodeCustomSectionAnywhere(t *testing.T) {
	b := header()
	b = append(b, section(0, 0x04, 'n', 'a', 'm', 'e')...) // custom, no content
	b = append(b, section(1, 0x01, 0x60, 0x00, 0x00)...)
	b = append(b, section(0, 0x01, 'x')...) // custom again, between sections
	b = append(b, section(3, 0x01, 0x00)...)
	b = append(b, section(10, 0x01, 0x02, 0x00, 0x0b)...)
	m, err := wasmbin.Decode(b)
	require.NoError(t, err)
	require.Len(t, m.Types, 1)
	require.Len(t, m.Code, 1)
}
