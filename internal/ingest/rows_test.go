package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTruncate(t *testing.T) {
	assert.Equal(t, "hel", truncate("hello", 3))
	assert.Equal(t, "hi", truncate("hi", 10))
	assert.Equal(t, "ab", truncate("a\x00b", 10), "truncate should strip NULs")
}

func TestPadLeftZero(t *testing.T) {
	assert.Equal(t, "00000042", padLeftZero("42", 8))
	assert.Equal(t, "12345678", padLeftZero("123456789", 8), "padLeftZero should truncate an overlong value")
	assert.Equal(t, "007", padLeftZero("  7  ", 3), "padLeftZero should trim whitespace first")
}

func TestIntegerPart(t *testing.T) {
	cases := []struct{ in, want string }{
		{"5.0", "5"},
		{"5", "5"},
		{"", ""},
		{"123.456", "123"},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, integerPart(c.in, 10), "integerPart(%q)", c.in)
	}
}

func TestParseCapitalSocial(t *testing.T) {
	cases := []struct {
		in   string
		want float64
	}{
		{"1000,50", 1000.50},
		{"0", 0},
		{"", 0},
		{"not-a-number", 0},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, parseCapitalSocial(c.in), "parseCapitalSocial(%q)", c.in)
	}
}

func TestBuildEmpresaRow_TooShort(t *testing.T) {
	_, ok := BuildEmpresaRow([]string{"1", "2", "3"})
	assert.False(t, ok, "expected a row with fewer than 7 fields to be rejected")
}

func TestBuildEmpresaRow(t *testing.T) {
	row := []string{"1", "ACME LTDA", "206", "49", "1000,00", "5", "SP"}
	r, ok := BuildEmpresaRow(row)
	require.True(t, ok, "expected a valid 7-field row to build")
	assert.Equal(t, "00000001", r.CNPJBasico)
	assert.Equal(t, 1000.0, r.CapitalSocial)
	assert.Len(t, r.Fields(), len(empresaColumns))
}

func TestBuildSimplesRow_TooShort(t *testing.T) {
	_, ok := BuildSimplesRow([]string{"1", "2"})
	assert.False(t, ok, "expected a row with fewer than 7 fields to be rejected")
}

func TestBuildEstabelecimentoRow_DropsCancelled(t *testing.T) {
	row := make([]string, minFieldsEstabelecimento)
	row[0] = "1"
	row[1] = "1"
	row[2] = "80"
	row[5] = "08"
	_, ok := BuildEstabelecimentoRow(row)
	assert.False(t, ok, "expected situacao_cadastral 08 to be dropped")
}

func TestBuildEstabelecimentoRow_TooShort(t *testing.T) {
	row := make([]string, minFieldsEstabelecimento-1)
	_, ok := BuildEstabelecimentoRow(row)
	assert.False(t, ok, "expected a row shorter than 30 fields to be rejected")
}

func TestBuildEstabelecimentoRow_BuildsCNPJ14(t *testing.T) {
	row := make([]string, minFieldsEstabelecimento)
	row[0] = "1"
	row[1] = "1"
	row[2] = "80"
	row[5] = "02"
	r, ok := BuildEstabelecimentoRow(row)
	require.True(t, ok, "expected an active establishment to build")
	assert.Equal(t, "00000001000180", r.CNPJ14)
	assert.Len(t, r.Fields(), len(estabelecimentoColumns))
}

func TestBuildSocioRow_TooShort(t *testing.T) {
	_, ok := BuildSocioRow(make([]string, minFieldsSocio-1))
	assert.False(t, ok, "expected a row with fewer than 11 fields to be rejected")
}

func TestBuildSocioRow_FlatLayout(t *testing.T) {
	row := []string{"1", "2", "JOHN DOE", "12345678900", "5", "0", "20200101", "105", "", "", "5", "3"}
	r, ok := BuildSocioRow(row)
	require.True(t, ok, "expected a 12-field row to build")
	assert.Equal(t, "00012345678900", r.CNPJCPFSocio, "CNPJCPFSocio should be zero-padded to 14")
	assert.Len(t, r.Fields(), len(sociosColumns))
}
