// Package ensino traduz códigos de tipo de ensino e série/ano da SED em rótulos legíveis.
//
// A tabela é fixa e somente leitura; códigos ausentes devolvem ok=false e devem ser
// tratados pelo chamador como "não mapeado", nunca como erro.
package ensino

import (
	"sort"
	"strconv"
	"strings"
)

// Serie é um par código/rótulo de série ou ano dentro de um tipo de ensino.
type Serie struct {
	Codigo int    `json:"codigo"`
	Nome   string `json:"nome"`
}

type tipoEnsino struct {
	descricao string
	series    map[int]string
}

var tabela = map[int]tipoEnsino{
	1: {
		descricao: "ENSINO FUNDAMENTAL DE 8 ANOS",
		series: map[int]string{
			5: "5ª SÉRIE",
			6: "6ª SÉRIE",
			7: "7ª SÉRIE",
			8: "8ª SÉRIE",
		},
	},
	2: {
		descricao: "ENSINO MÉDIO",
		series: map[int]string{
			1: "1ª SÉRIE EM",
			2: "2ª SÉRIE EM",
			3: "3ª SÉRIE EM",
		},
	},
	3: {
		descricao: "EJA FUNDAMENTAL - ANOS INICIAIS",
		series: map[int]string{
			1: "1º TERMO EJA ANOS INICIAIS",
			2: "2º TERMO EJA ANOS INICIAIS",
		},
	},
	4: {
		descricao: "EJA FUNDAMENTAL - ANOS FINAIS",
		series: map[int]string{
			1: "1º TERMO EJA ANOS FINAIS",
			2: "2º TERMO EJA ANOS FINAIS",
			3: "3º TERMO EJA ANOS FINAIS",
			4: "4º TERMO EJA ANOS FINAIS",
		},
	},
	5: {
		descricao: "EJA ENSINO MÉDIO",
		series: map[int]string{
			1: "1º TERMO EJA EM",
			2: "2º TERMO EJA EM",
			3: "3º TERMO EJA EM",
		},
	},
	6: {
		descricao: "EDUCAÇÃO INFANTIL",
		series: map[int]string{
			1: "BERÇÁRIO I",
			2: "BERÇÁRIO II",
			3: "MATERNAL I",
			4: "MATERNAL II",
			5: "PRÉ-ESCOLA I",
			6: "PRÉ-ESCOLA II",
		},
	},
	14: {
		descricao: "ENSINO FUNDAMENTAL DE 9 ANOS",
		series: map[int]string{
			1: "1º ANO",
			2: "2º ANO",
			3: "3º ANO",
			4: "4º ANO",
			5: "5º ANO",
			6: "6º ANO",
			7: "7º ANO",
			8: "8º ANO",
			9: "9º ANO",
		},
	},
}

// DescribeTipoEnsino devolve a descrição do tipo de ensino.
func DescribeTipoEnsino(codigo int) (string, bool) {
	t, ok := tabela[codigo]
	if !ok {
		return "", false
	}
	return t.descricao, true
}

// ClassName devolve o nome da classe para o par tipo de ensino + série.
func ClassName(tipoEnsino, serie int) (string, bool) {
	t, ok := tabela[tipoEnsino]
	if !ok {
		return "", false
	}
	nome, ok := t.series[serie]
	return nome, ok
}

// ListSeries devolve as séries do tipo de ensino ordenadas pelo código.
func ListSeries(tipoEnsino int) ([]Serie, bool) {
	t, ok := tabela[tipoEnsino]
	if !ok {
		return nil, false
	}
	series := make([]Serie, 0, len(t.series))
	for codigo, nome := range t.series {
		series = append(series, Serie{Codigo: codigo, Nome: nome})
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Codigo < series[j].Codigo })
	return series, true
}

// ListTiposEnsino devolve uma cópia do mapa código → descrição.
func ListTiposEnsino() map[int]string {
	out := make(map[int]string, len(tabela))
	for codigo, t := range tabela {
		out[codigo] = t.descricao
	}
	return out
}

// ParseCodigo converte códigos vindos da SED (ex.: "14", " 09") em inteiros.
func ParseCodigo(raw string) (int, bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
