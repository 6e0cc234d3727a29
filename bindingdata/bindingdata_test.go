package bindingdata_test

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jobhost/bindings/bindingdata"
	"github.com/jobhost/bindings/pattern"
	"github.com/stretchr/testify/suite"
)

type (
	Priority string

	Address struct {
		City string
	}

	Order struct {
		Id       int
		Name     string
		Priority Priority
		Placed   time.Time
		Expires  *time.Time
		Batch    uuid.UUID
		Ship     Address
		Tags     []string
		Payload  []byte
		internal string
	}

	Pair struct {
		Count int
		Label string
	}

	Tracked struct {
		Pair
		Owner string
	}
)

type BindingDataTestSuite struct {
	suite.Suite
}

func (suite *BindingDataTestSuite) TestDeriveContract() {
	suite.Run("Primitives", func() {
		suite.Nil(bindingdata.DeriveContract(reflect.TypeOf("")))
		suite.Nil(bindingdata.DeriveContract(reflect.TypeOf((*any)(nil)).Elem()))
		suite.Nil(bindingdata.DeriveContract(reflect.TypeOf([]byte(nil))))
		suite.Nil(bindingdata.DeriveContract(reflect.TypeOf(42)))
		suite.Nil(bindingdata.DeriveContract(reflect.TypeOf(time.Time{})))
	})

	suite.Run("IntAndString", func() {
		contract := bindingdata.DeriveContract(reflect.TypeOf(Pair{}))
		suite.Equal([]string{"Count", "Label"}, contract.Names())
		typ, name, ok := contract.Lookup("count")
		suite.True(ok)
		suite.Equal("Count", name)
		suite.Equal(reflect.TypeOf(0), typ)
	})

	suite.Run("ExcludesNonConvertible", func() {
		contract := bindingdata.DeriveContract(reflect.TypeOf(&Order{}))
		suite.Equal([]string{"Batch", "Expires", "Id", "Name", "Placed", "Priority"},
			contract.Names())
	})

	suite.Run("Promoted", func() {
		contract := bindingdata.DeriveContract(reflect.TypeOf(Tracked{}))
		suite.Equal([]string{"Count", "Label", "Owner"}, contract.Names())
	})
}

func (suite *BindingDataTestSuite) TestExtract() {
	contract := bindingdata.DeriveContract(reflect.TypeOf(Order{}))

	suite.Run("Values", func() {
		placed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
		data, err := bindingdata.Extract(&Order{
			Id: 7, Name: "widget", Priority: "high", Placed: placed,
		}, contract)
		suite.Nil(err)
		id, ok := data.Get("ID")
		suite.True(ok)
		suite.Equal(7, id)
		suite.Equal(Priority("high"), data["priority"])
		suite.Equal(placed, data["placed"])
		expires, ok := data.Get("expires")
		suite.True(ok)
		suite.Nil(expires)
	})

	suite.Run("Mismatch", func() {
		_, err := bindingdata.Extract(Pair{}, contract)
		suite.True(errors.Is(err, bindingdata.ErrContractMismatch))
	})

	suite.Run("NotStruct", func() {
		_, err := bindingdata.Extract("text", contract)
		suite.True(errors.Is(err, bindingdata.ErrContractMismatch))
	})

	suite.Run("NoContract", func() {
		data, err := bindingdata.Extract(Pair{}, nil)
		suite.Nil(err)
		suite.Nil(data)
	})
}

func (suite *BindingDataTestSuite) TestExtractJSON() {
	contract := bindingdata.DeriveContract(reflect.TypeOf(Order{}))

	suite.Run("Scalars", func() {
		data := bindingdata.ExtractJSON(`{
			"id": 9007199254740993,
			"NAME": "widget",
			"Priority": "low",
			"Placed": "2024-01-02T03:04:05",
			"Expires": "2024-01-02T05:04:05+02:00",
			"Batch": "c5b8f1d4-3f5e-4d7a-9c53-7b2f0a6a1e11"
		}`, contract)
		suite.Equal(9007199254740993, data["id"])
		suite.Equal("widget", data["name"])
		suite.Equal(Priority("low"), data["priority"])
		suite.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), data["placed"])
		expires := data["expires"].(*time.Time)
		suite.Equal(time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), *expires)
		suite.Equal(uuid.MustParse("c5b8f1d4-3f5e-4d7a-9c53-7b2f0a6a1e11"), data["batch"])
	})

	suite.Run("IntegerForms", func() {
		numbers := bindingdata.Contract{
			"Big":      reflect.TypeFor[uint64](),
			"Whole":    reflect.TypeFor[int](),
			"Exponent": reflect.TypeFor[int64](),
			"Count":    reflect.TypeFor[*uint32](),
			"Negative": reflect.TypeFor[uint](),
		}
		data := bindingdata.ExtractJSON(`{
			"Big": 18446744073709551615,
			"Whole": 42.0,
			"Exponent": 1e3,
			"Count": 7,
			"Negative": -1
		}`, numbers)
		suite.Equal(uint64(18446744073709551615), data["big"])
		suite.Equal(42, data["whole"])
		suite.Equal(int64(1000), data["exponent"])
		count := data["count"].(*uint32)
		suite.Equal(uint32(7), *count)
		_, ok := data["negative"]
		suite.False(ok)
	})

	suite.Run("SkipsNonScalars", func() {
		data := bindingdata.ExtractJSON(`{"Name": {"first": "x"}, "Id": [1], "Priority": null}`, contract)
		suite.NotNil(data)
		suite.Empty(data)
	})

	suite.Run("SkipsUnconvertible", func() {
		data := bindingdata.ExtractJSON(`{"Id": "seven", "Name": "x"}`, contract)
		suite.Equal(bindingdata.Data{"name": "x"}, data)
	})

	suite.Run("Malformed", func() {
		suite.Nil(bindingdata.ExtractJSON(`{"Id": `, contract))
		suite.Nil(bindingdata.ExtractJSON(`[1,2]`, contract))
		suite.Nil(bindingdata.ExtractJSON(`{}`, nil))
	})
}

func (suite *BindingDataTestSuite) TestChangeType() {
	suite.Run("Numbers", func() {
		v, err := bindingdata.ChangeType(float64(12), reflect.TypeOf(int16(0)))
		suite.Nil(err)
		suite.Equal(int16(12), v)
		_, err = bindingdata.ChangeType(float64(1.5), reflect.TypeOf(0))
		suite.NotNil(err)
		_, err = bindingdata.ChangeType(float64(300), reflect.TypeOf(uint8(0)))
		suite.NotNil(err)
		v, err = bindingdata.ChangeType("2.5", reflect.TypeOf(float32(0)))
		suite.Nil(err)
		suite.Equal(float32(2.5), v)
	})

	suite.Run("Strings", func() {
		v, err := bindingdata.ChangeType(float64(3), reflect.TypeOf(""))
		suite.Nil(err)
		suite.Equal("3", v)
		v, err = bindingdata.ChangeType(true, reflect.TypeOf(""))
		suite.Nil(err)
		suite.Equal("true", v)
	})

	suite.Run("Bool", func() {
		v, err := bindingdata.ChangeType("TRUE", reflect.TypeOf(false))
		suite.Nil(err)
		suite.Equal(true, v)
	})

	suite.Run("Duration", func() {
		v, err := bindingdata.ChangeType("90s", reflect.TypeOf(time.Duration(0)))
		suite.Nil(err)
		suite.Equal(90*time.Second, v)
	})

	suite.Run("Pointer", func() {
		v, err := bindingdata.ChangeType("x", reflect.TypeOf((*string)(nil)))
		suite.Nil(err)
		suite.Equal("x", *(v.(*string)))
	})
}

func (suite *BindingDataTestSuite) TestData() {
	suite.Run("Strings", func() {
		id := uuid.New()
		data := bindingdata.New(map[string]any{
			"Name": "x", "Count": 3, "Id": id, "Flag": true, "Priority": Priority("p"),
		})
		suite.Equal(pattern.Values{
			"name": "x", "count": "3", "id": id.String(), "priority": "p",
		}, data.Strings())
	})

	suite.Run("Lookup", func() {
		data := bindingdata.New(map[string]any{"Name": "x"})
		path, err := pattern.Resolve("c/{NAME}", data)
		suite.Nil(err)
		suite.Equal("c/x", path)
	})

	suite.Run("FromValues", func() {
		data := bindingdata.FromValues(pattern.Values{"Name": "x"})
		suite.Equal(bindingdata.Data{"name": "x"}, data)
		suite.Nil(bindingdata.FromValues(nil))
	})

	suite.Run("Merge", func() {
		into := bindingdata.New(map[string]any{"name": "x", "count": 1})
		merged, err := bindingdata.Merge(into,
			bindingdata.New(map[string]any{"Count": 2, "when": time.Unix(0, 0).UTC()}))
		suite.Nil(err)
		suite.Equal(bindingdata.Data{
			"name": "x", "count": 2, "when": time.Unix(0, 0).UTC(),
		}, merged)
		suite.Equal(1, into["count"])
	})
}

func TestBindingDataTestSuite(t *testing.T) {
	suite.Run(t, new(BindingDataTestSuite))
}
