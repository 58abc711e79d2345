// Package ingest implements the four-phase streaming import that turns
// raw CNPJ CSV files into the denormalised final schema.
package ingest

import (
	"strconv"
	"strings"
)

// field returns row[idx] or "" if the row has no element at idx.
func field(row []string, idx int) string {
	if idx >= len(row) || row[idx] == "" {
		return ""
	}
	return row[idx]
}

// stripNuls removes NUL bytes, invalid in Postgres text columns.
func stripNuls(s string) string {
	if !strings.ContainsRune(s, 0) {
		return s
	}
	return strings.ReplaceAll(s, "\x00", "")
}

// truncate strips NULs then cuts s to at most n characters. Latin-1 input
// decodes to UTF-8 where accented letters take two bytes, so the cut is
// made on runes to match the column's character width and never split a
// character.
func truncate(s string, n int) string {
	s = stripNuls(s)
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// padLeftZero left-pads s with '0' to width n after stripping whitespace.
func padLeftZero(s string, n int) string {
	s = strings.TrimSpace(s)
	if len(s) >= n {
		return s[:n]
	}
	return strings.Repeat("0", n-len(s)) + s
}

// integerPart strips a trailing ".0"-style decimal suffix some upstream
// exports leave on integer-coded columns, then truncates to n chars.
func integerPart(s string, n int) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}
	if i := strings.IndexByte(s, '.'); i >= 0 {
		s = s[:i]
	}
	return truncate(s, n)
}

// parseCapitalSocial parses a Brazilian-formatted decimal (comma separator)
// defaulting to 0 on any parse failure.
func parseCapitalSocial(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	s = strings.ReplaceAll(s, ",", ".")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}

// EmpresaRow is a staging_empresas tuple built from a 7-field EMPRECSV row.
type EmpresaRow struct {
	CNPJBasico              string
	RazaoSocial             string
	NaturezaJuridica        string
	QualificacaoResponsavel string
	CapitalSocial           float64
	PorteEmpresa            string
	EnteFederativo          string
}

const minFieldsEmpresa = 7

var empresaColumns = []string{
	"cnpj_basico", "razao_social", "natureza_juridica", "qualificacao_responsavel",
	"capital_social", "porte_empresa", "ente_federativo",
}

// BuildEmpresaRow builds an EmpresaRow from a positional CSV row, or ok=false
// if the row is too short to be valid.
func BuildEmpresaRow(row []string) (EmpresaRow, bool) {
	if len(row) < minFieldsEmpresa {
		return EmpresaRow{}, false
	}
	return EmpresaRow{
		CNPJBasico:              padLeftZero(stripNuls(field(row, 0)), 8),
		RazaoSocial:             truncate(field(row, 1), 255),
		NaturezaJuridica:        truncate(field(row, 2), 4),
		QualificacaoResponsavel: integerPart(field(row, 3), 2),
		CapitalSocial:           parseCapitalSocial(field(row, 4)),
		PorteEmpresa:            integerPart(field(row, 5), 2),
		EnteFederativo:          truncate(field(row, 6), 100),
	}, true
}

// Fields returns the row as typed COPY arguments in column order.
func (r EmpresaRow) Fields() []interface{} {
	return []interface{}{
		r.CNPJBasico, r.RazaoSocial, r.NaturezaJuridica, r.QualificacaoResponsavel,
		r.CapitalSocial, r.PorteEmpresa, r.EnteFederativo,
	}
}

// SimplesRow is a staging_simples tuple built from a 7-field SIMECSV row.
type SimplesRow struct {
	CNPJBasico          string
	OpcaoSimples        string
	DataOpcaoSimples    string
	DataExclusaoSimples string
	OpcaoMEI            string
	DataOpcaoMEI        string
	DataExclusaoMEI     string
}

const minFieldsSimples = 7

var simplesColumns = []string{
	"cnpj_basico", "opcao_simples", "data_opcao_simples", "data_exclusao_simples",
	"opcao_mei", "data_opcao_mei", "data_exclusao_mei",
}

// BuildSimplesRow builds a SimplesRow from a positional CSV row.
func BuildSimplesRow(row []string) (SimplesRow, bool) {
	if len(row) < minFieldsSimples {
		return SimplesRow{}, false
	}
	return SimplesRow{
		CNPJBasico:          padLeftZero(stripNuls(field(row, 0)), 8),
		OpcaoSimples:        truncate(field(row, 1), 1),
		DataOpcaoSimples:    truncate(field(row, 2), 8),
		DataExclusaoSimples: truncate(field(row, 3), 8),
		OpcaoMEI:            truncate(field(row, 4), 1),
		DataOpcaoMEI:        truncate(field(row, 5), 8),
		DataExclusaoMEI:     truncate(field(row, 6), 8),
	}, true
}

// Fields returns the row as typed COPY arguments in column order.
func (r SimplesRow) Fields() []interface{} {
	return []interface{}{
		r.CNPJBasico, r.OpcaoSimples, r.DataOpcaoSimples, r.DataExclusaoSimples,
		r.OpcaoMEI, r.DataOpcaoMEI, r.DataExclusaoMEI,
	}
}

// EstabelecimentoRow is a staging_estabelecimentos tuple built from a
// 30-field ESTABELE row. Truncation widths follow the input-column table.
type EstabelecimentoRow struct {
	CNPJ14                  string
	CNPJBasico              string
	CNPJOrdem               string
	CNPJDV                  string
	MatrizFilial            string
	NomeFantasia            string
	SituacaoCadastral       string
	DataSituacaoCadastral   string
	MotivoSituacaoCadastral string
	NomeCidadeExterior      string
	CodigoPais              string
	Pais                    string
	DataInicioAtividade     string
	CNAEFiscalPrincipal     string
	CNAEFiscalSecundaria    string
	TipoLogradouro          string
	Logradouro              string
	Numero                  string
	Complemento             string
	Bairro                  string
	CEP                     string
	UF                      string
	Municipio               string
	DDD1                    string
	Telefone1               string
	DDD2                    string
	Telefone2               string
	DDDFax                  string
	Fax                     string
	Email                   string
	SituacaoEspecial        string
	DataSituacaoEspecial    string
}

const minFieldsEstabelecimento = 30

// situacaoCancelada is the registration status that drops a row from the
// pipeline entirely (roughly 40% of upstream volume).
const situacaoCancelada = "08"

var estabelecimentoColumns = []string{
	"cnpj14", "cnpj_basico", "cnpj_ordem", "cnpj_dv", "matriz_filial",
	"nome_fantasia", "situacao_cadastral", "data_situacao_cadastral",
	"motivo_situacao_cadastral", "nome_cidade_exterior", "codigo_pais", "pais",
	"data_inicio_atividade", "cnae_fiscal_principal", "cnae_fiscal_secundaria",
	"tipo_logradouro", "logradouro", "numero", "complemento", "bairro", "cep",
	"uf", "municipio", "ddd1", "telefone1", "ddd2", "telefone2", "ddd_fax",
	"fax", "email", "situacao_especial", "data_situacao_especial",
}

// BuildEstabelecimentoRow builds an EstabelecimentoRow from a positional CSV
// row. ok is false if the row is too short, or if the establishment is
// cancelled (situacao_cadastral == "08") and must not reach staging.
func BuildEstabelecimentoRow(row []string) (EstabelecimentoRow, bool) {
	if len(row) < minFieldsEstabelecimento {
		return EstabelecimentoRow{}, false
	}

	situacao := integerPart(field(row, 5), 2)
	if situacao == situacaoCancelada {
		return EstabelecimentoRow{}, false
	}

	cnpjBasico := padLeftZero(stripNuls(field(row, 0)), 8)
	cnpjOrdem := padLeftZero(stripNuls(field(row, 1)), 4)
	cnpjDV := padLeftZero(stripNuls(field(row, 2)), 2)

	return EstabelecimentoRow{
		CNPJ14:                  cnpjBasico + cnpjOrdem + cnpjDV,
		CNPJBasico:              cnpjBasico,
		CNPJOrdem:               cnpjOrdem,
		CNPJDV:                  cnpjDV,
		MatrizFilial:            truncate(field(row, 3), 1),
		NomeFantasia:            truncate(field(row, 4), 255),
		SituacaoCadastral:       situacao,
		DataSituacaoCadastral:   truncate(field(row, 6), 8),
		MotivoSituacaoCadastral: integerPart(field(row, 7), 2),
		NomeCidadeExterior:      truncate(field(row, 8), 100),
		CodigoPais:              truncate(field(row, 9), 3),
		Pais:                    "",
		DataInicioAtividade:     truncate(field(row, 11), 8),
		CNAEFiscalPrincipal:     truncate(field(row, 12), 7),
		CNAEFiscalSecundaria:    stripNuls(field(row, 13)),
		TipoLogradouro:          truncate(field(row, 14), 50),
		Logradouro:              truncate(field(row, 15), 255),
		Numero:                  truncate(field(row, 16), 20),
		Complemento:             truncate(field(row, 17), 255),
		Bairro:                  truncate(field(row, 18), 100),
		CEP:                     truncate(field(row, 19), 8),
		UF:                      truncate(field(row, 20), 2),
		Municipio:               truncate(field(row, 21), 100),
		DDD1:                    truncate(field(row, 22), 4),
		Telefone1:               truncate(field(row, 23), 20),
		DDD2:                    truncate(field(row, 24), 4),
		Telefone2:               truncate(field(row, 25), 20),
		DDDFax:                  truncate(field(row, 26), 4),
		Fax:                     truncate(field(row, 27), 20),
		Email:                   truncate(field(row, 28), 255),
		SituacaoEspecial:        truncate(field(row, 29), 100),
		DataSituacaoEspecial:    "",
	}, true
}

// Fields returns the row as typed COPY arguments in column order.
func (r EstabelecimentoRow) Fields() []interface{} {
	return []interface{}{
		r.CNPJ14, r.CNPJBasico, r.CNPJOrdem, r.CNPJDV, r.MatrizFilial,
		r.NomeFantasia, r.SituacaoCadastral, r.DataSituacaoCadastral,
		r.MotivoSituacaoCadastral, r.NomeCidadeExterior, r.CodigoPais, r.Pais,
		r.DataInicioAtividade, r.CNAEFiscalPrincipal, r.CNAEFiscalSecundaria,
		r.TipoLogradouro, r.Logradouro, r.Numero, r.Complemento, r.Bairro, r.CEP,
		r.UF, r.Municipio, r.DDD1, r.Telefone1, r.DDD2, r.Telefone2, r.DDDFax,
		r.Fax, r.Email, r.SituacaoEspecial, r.DataSituacaoEspecial,
	}
}

// SocioRow is a socios tuple built from a minimum-11-field SOCIOCSV row.
type SocioRow struct {
	CNPJBasico                      string
	IdentificadorSocio              string
	NomeSocio                       string
	CNPJCPFSocio                    string
	CodigoQualificacaoSocio         string
	PercentualCapitalSocial         string
	DataEntradaSociedade            string
	CodigoPais                      string
	CPFRepresentanteLegal           string
	NomeRepresentanteLegal          string
	CodigoQualificacaoRepresentante string
	FaixaEtaria                     string
}

const minFieldsSocio = 11

var sociosColumns = []string{
	"cnpj_basico", "identificador_socio", "nome_socio", "cnpj_cpf_socio",
	"codigo_qualificacao_socio", "percentual_capital_social", "data_entrada_sociedade",
	"codigo_pais", "cpf_representante_legal", "nome_representante_legal",
	"codigo_qualificacao_representante", "faixa_etaria",
}

// BuildSocioRow builds a SocioRow from a positional CSV row of at least 11
// fields (flat layout: no optional percentual_capital_social column).
func BuildSocioRow(row []string) (SocioRow, bool) {
	if len(row) < minFieldsSocio {
		return SocioRow{}, false
	}
	return SocioRow{
		CNPJBasico:                      padLeftZero(stripNuls(field(row, 0)), 8),
		IdentificadorSocio:              truncate(field(row, 1), 1),
		NomeSocio:                       truncate(field(row, 2), 255),
		CNPJCPFSocio:                    padLeftZero(stripNuls(field(row, 3)), 14),
		CodigoQualificacaoSocio:         integerPart(field(row, 4), 2),
		PercentualCapitalSocial:         integerPart(field(row, 5), 6),
		DataEntradaSociedade:            truncate(field(row, 6), 8),
		CodigoPais:                      truncate(field(row, 7), 3),
		CPFRepresentanteLegal:           padLeftZero(stripNuls(field(row, 8)), 11),
		NomeRepresentanteLegal:          truncate(field(row, 9), 255),
		CodigoQualificacaoRepresentante: integerPart(field(row, 10), 2),
		FaixaEtaria:                     truncate(field(row, 11), 2),
	}, true
}

// Fields returns the row as typed COPY arguments in column order.
func (r SocioRow) Fields() []interface{} {
	return []interface{}{
		r.CNPJBasico, r.IdentificadorSocio, r.NomeSocio, r.CNPJCPFSocio,
		r.CodigoQualificacaoSocio, r.PercentualCapitalSocial, r.DataEntradaSociedade,
		r.CodigoPais, r.CPFRepresentanteLegal, r.NomeRepresentanteLegal,
		r.CodigoQualificacaoRepresentante, r.FaixaEtaria,
	}
}
