package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDistricts_Shapes(t *testing.T) {
	names, err := ParseDistricts([]byte(`["Centro", " Jardim ", "", "Centro"]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Centro", "Jardim"}, names.Names())
	assert.Equal(t, 0.0, names.Fee("Centro"))

	objects, err := ParseDistricts([]byte(`[
		{"name": "Centro", "fee": 7.5},
		{"bairro": "Jardim", "entrega": "5"},
		{"nome": "Vila", "fee": "abc"},
		{"fee": 3},
		42
	]`))
	require.NoError(t, err)
	assert.Equal(t, []string{"Centro", "Jardim", "Vila"}, objects.Names())
	assert.Equal(t, 7.5, objects.Fee("Centro"))
	assert.Equal(t, 5.0, objects.Fee("Jardim"))
	assert.Equal(t, 0.0, objects.Fee("Vila"))

	mapped, err := ParseDistricts([]byte(`{"Centro": 7.5, "Jardim": 5}`))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Centro", "Jardim"}, mapped.Names())
	assert.Equal(t, 5.0, mapped.Fee("Jardim"))

	_, err = ParseDistricts([]byte(`"Centro"`))
	assert.Error(t, err)
	_, err = ParseDistricts([]byte(`{`))
	assert.Error(t, err)
}

func TestFeeTable_MergeOverridesFeesOnly(t *testing.T) {
	base, err := ParseDistricts([]byte(`[{"name":"Centro","fee":5},{"name":"Jardim","fee":6}]`))
	require.NoError(t, err)
	override, err := ParseFeeOverrides([]byte(`{"Centro": 9, "Longe": 20}`))
	require.NoError(t, err)

	base.Merge(override)
	assert.Equal(t, []string{"Centro", "Jardim"}, base.Names())
	assert.Equal(t, 9.0, base.Fee("Centro"))
	assert.Equal(t, 6.0, base.Fee("Jardim"))
	assert.Equal(t, 20.0, base.Fee("Longe"))
}

func TestFeeTable_OverrideWithoutFeeKeepsFee(t *testing.T) {
	base, err := ParseDistricts([]byte(`{"Centro": 7.5, "Jardim": 5}`))
	require.NoError(t, err)

	listed, err := ParseFeeOverrides([]byte(`[{"name":"Centro"},{"name":"Jardim","fee":1}]`))
	require.NoError(t, err)
	base.Merge(listed)
	assert.Equal(t, 7.5, base.Fee("Centro"))
	assert.Equal(t, 5.0, base.Fee("Jardim"), "list shapes never override")

	mapped, err := ParseFeeOverrides([]byte(`{"Centro": null, "Jardim": "abc", " ": 3}`))
	require.NoError(t, err)
	base.Merge(mapped)
	assert.Equal(t, 7.5, base.Fee("Centro"))
	assert.Equal(t, 5.0, base.Fee("Jardim"))
	assert.Equal(t, []string{"Centro", "Jardim"}, sortedNames(base))

	objects, err := ParseDistricts([]byte(`[{"name":"Vila"}]`))
	require.NoError(t, err)
	assert.Equal(t, []District{{Name: "Vila"}}, objects.Districts())

	_, err = ParseFeeOverrides([]byte(`{`))
	assert.Error(t, err)
}

func sortedNames(t *FeeTable) []string {
	return t.Sorted(nil).Names()
}

func TestFeeTable_Sorted(t *testing.T) {
	table, err := ParseDistricts([]byte(`["Vila 10", "água Branca", "Vila 2", "Bela Vista"]`))
	require.NoError(t, err)
	table.Sorted(nil)
	assert.Equal(t, []string{"água Branca", "Bela Vista", "Vila 2", "Vila 10"}, table.Names())
}

func TestDistrict_Label(t *testing.T) {
	assert.Equal(t, "Centro — R$ 7,50", District{Name: "Centro", Fee: 7.5}.Label(nil))
	assert.Equal(t, "Jardim", District{Name: "Jardim"}.Label(nil))
}

func TestDistrictLoader_Load(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/bairros.json":
			w.Write([]byte(`[{"name":"Jardim","fee":6},{"name":"Centro","fee":5}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	dir := t.TempDir()
	overrides := filepath.Join(dir, "bairros_frete.json")
	require.NoError(t, os.WriteFile(overrides, []byte(`{"Centro": 8.25}`), 0o600))

	loader := NewDistrictLoader(0)
	table := loader.Load(context.Background(),
		[]string{srv.URL + "/missing.json", srv.URL + "/bairros.json"},
		[]string{filepath.Join(dir, "nope.json"), overrides},
	)

	assert.Equal(t, []District{{Name: "Centro", Fee: 8.25}, {Name: "Jardim", Fee: 6}}, table.Districts())
}

func TestDistrictLoader_NothingAvailable(t *testing.T) {
	table := NewDistrictLoader(0).Load(context.Background(), []string{"/does/not/exist.json"}, nil)
	assert.Empty(t, table.Names())
	assert.Equal(t, 0.0, table.Fee("Centro"))
}
