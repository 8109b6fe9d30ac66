package model

import (
	"github.com/lib/pq"
)

// Disease は "Enfermedad" テーブルの 1 行です。
// 配列カラムは観測ごとの値を重複なしで蓄積します。
type Disease struct {
	ID              uint           `gorm:"column:ID;primaryKey" json:"id"`
	Name            string         `gorm:"column:Nombre;not null" json:"nombre"`
	ScientificName  string         `gorm:"column:NombreCientifico" json:"nombreCientifico"`
	Sources         pq.StringArray `gorm:"column:Fuente;type:text[]" json:"fuente"`
	Descriptions    pq.StringArray `gorm:"column:Descripcion;type:text[]" json:"descripcion"`
	Solutions       pq.StringArray `gorm:"column:Solucion;type:text[]" json:"solucion"`
	AffectedSpecies pq.StringArray `gorm:"column:EspeciesComunes;type:text[]" json:"especiesComunes"`
	PhotoURL        *string        `gorm:"column:Foto" json:"foto"`
}

func (Disease) TableName() string { return "Enfermedad" }

// Species は "TipoEspecifico" テーブルの 1 行です。
type Species struct {
	ID           uint     `gorm:"column:ID;primaryKey" json:"id"`
	Name         string   `gorm:"column:Nombre;not null" json:"nombre"`
	Info         string   `gorm:"column:Info" json:"info"`
	PhotoURL     *string  `gorm:"column:Foto" json:"foto"`
	TempMinIdeal *float64 `gorm:"column:TempMinIdeal" json:"tempMinIdeal"`
	TempMaxIdeal *float64 `gorm:"column:TempMaxIdeal" json:"tempMaxIdeal"`
	Guides       []Guide  `gorm:"foreignKey:PlantID;references:ID" json:"guias,omitempty"`
}

func (Species) TableName() string { return "TipoEspecifico" }

// Guide は "Guía" テーブルの 1 行で、TipoEspecifico に紐づきます。
type Guide struct {
	ID      uint    `gorm:"column:ID;primaryKey" json:"id"`
	Title   string  `gorm:"column:Título" json:"titulo"`
	Content string  `gorm:"column:Contenido" json:"contenido"`
	Media   *string `gorm:"column:Multimedia" json:"multimedia"`
	PlantID uint    `gorm:"column:IdPlanta;not null;index" json:"idPlanta"`
}

func (Guide) TableName() string { return "Guía" }
